package users

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
)

// LoadCSV parses users from rows of username,password[,id[,region]].
// A first row starting with "username" is treated as a header. Rows
// without an id get a random one.
func LoadCSV(r io.Reader) ([]User, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.Comment = '#'

	var users []User
	for line := 1; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("users csv: %w", err)
		}
		if line == 1 && strings.EqualFold(strings.TrimSpace(record[0]), "username") {
			continue
		}
		if len(record) < 2 {
			return nil, fmt.Errorf("users csv line %d: want at least username,password", line)
		}

		u := User{
			Username: strings.TrimSpace(record[0]),
			Password: record[1],
		}
		if len(record) > 2 {
			u.ID = strings.TrimSpace(record[2])
		}
		if len(record) > 3 {
			u.Region = strings.TrimSpace(record[3])
		}
		if u.Username == "" {
			return nil, fmt.Errorf("users csv line %d: empty username", line)
		}
		if u.ID == "" {
			u.ID = uuid.NewString()
		}
		users = append(users, u)
	}
	return users, nil
}

// LoadFile reads a users CSV file.
func LoadFile(path string) ([]User, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open users file: %w", err)
	}
	defer f.Close()
	return LoadCSV(f)
}
