package materializer

import (
	"context"
	"time"

	"github.com/wesleyorama2/stampede/internal/dsl"
	"github.com/wesleyorama2/stampede/internal/metrics"
	"github.com/wesleyorama2/stampede/internal/session"
	"github.com/wesleyorama2/stampede/internal/transport"
)

// http issues the request described by st, applying its retry policy.
//
// Attempt k (counting from 0) is followed by another attempt when
// k < MaxRetries and either the retry condition holds for the response or
// the attempt failed at the network level. Network errors are only retried
// when a policy is installed.
//
// Non-cumulative mode records one measurement per attempt. Cumulative mode
// records a single measurement from the first attempt's start to the last
// response. Network errors record an "N/A" measurement in both modes.
func (m *Materializer) http(ctx context.Context, parent string, st dsl.HTTPStep, s *session.Session) (any, error) {
	name := stepName(st)
	if st.Endpoint == nil {
		return nil, &InvariantError{Step: name, Msg: "http step without an endpoint"}
	}

	req, err := buildRequest(st, s)
	if err != nil {
		return nil, m.fail(s, parent, name, err)
	}

	var (
		maxRetries int
		cumulative bool
		when       func(*transport.Response) bool
	)
	if st.Retry != nil {
		maxRetries = st.Retry.MaxRetries
		cumulative = st.Retry.Cumulative
		when = st.Retry.When
	}

	record := func(start, end time.Time, status, msg string) {
		if st.Unmeasured {
			return
		}
		meas := metrics.NewMeasurement(parent, name, userID(s), start, end, status)
		meas.Message = msg
		s.Record(meas)
	}

	var (
		resp  *transport.Response
		first time.Time
	)
	for attempt := 0; ; attempt++ {
		start := m.now()
		if attempt == 0 {
			first = start
		}

		var execErr error
		resp, execErr = m.client.Execute(ctx, req)
		end := m.now()

		if execErr != nil {
			resp = nil
			record(start, end, metrics.StatusNA, execErr.Error())
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if st.Retry == nil || attempt >= maxRetries {
				break
			}
			continue
		}

		status := metrics.StatusCode(resp.StatusCode)
		retry := when != nil && attempt < maxRetries && when(resp)

		if !cumulative {
			record(start, end, status, "")
		} else if !retry {
			record(first, end, status, "")
		}
		if !retry {
			break
		}
	}

	if resp == nil {
		if st.SaveTo != "" {
			s.Delete(st.Scope, st.SaveTo)
		}
		return nil, nil
	}
	if st.SaveTo != "" {
		s.Set(st.Scope, st.SaveTo, resp)
	}
	return resp, nil
}

// buildRequest evaluates every session-dependent part of st.
func buildRequest(st dsl.HTTPStep, s *session.Session) (*transport.Request, error) {
	endpoint, err := st.Endpoint(s)
	if err != nil {
		return nil, err
	}
	req := transport.NewRequest(st.Method, endpoint)

	for _, fn := range st.Headers {
		header, err := fn(s)
		if err != nil {
			return nil, err
		}
		for key, values := range header {
			for _, v := range values {
				req.Header.Add(key, v)
			}
		}
	}
	for _, fn := range st.Query {
		query, err := fn(s)
		if err != nil {
			return nil, err
		}
		for key, values := range query {
			req.Query[key] = append(req.Query[key], values...)
		}
	}
	for _, fn := range st.Form {
		form, err := fn(s)
		if err != nil {
			return nil, err
		}
		for key, values := range form {
			req.Form[key] = append(req.Form[key], values...)
		}
	}
	if st.Body != nil {
		body, err := st.Body(s)
		if err != nil {
			return nil, err
		}
		req.Body = body
	}

	if st.Authenticate {
		user := s.User()
		if token := user.AccessToken(); token != "" {
			req.SetBearer(token)
		} else {
			req.SetBasicAuth(user.Username, user.Password)
		}
	}
	return req, nil
}
