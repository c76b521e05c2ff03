// Package perf is the programmatic entry point for writing scenarios in Go
// and running them without a configuration file.
//
// # Scenarios
//
// A scenario is a tree of steps built from the constructors in this
// package:
//
//	browse := perf.Sequence(
//	    perf.HTTP("login").Post("https://shop.example.com/login").
//	        JSONBody(map[string]string{"user": "ada"}).
//	        SaveIn(perf.ScopeUser, "login"),
//	    perf.HTTP("items").Get("https://shop.example.com/items").Auth().SaveAs("items"),
//	    perf.Ensure(perf.Exists("items"), "no items"),
//	    perf.ForEach(perf.JSONItems("items", "$.items"), func(item any, _ int) perf.Step {
//	        return perf.HTTP("detail").Get(fmt.Sprintf("https://shop.example.com/items/%v", item))
//	    }),
//	    perf.Wait(200 * time.Millisecond),
//	)
//
// Register it so the stampede command can find it:
//
//	func init() {
//	    perf.MustRegister("browse", browse)
//	}
//
// # Running
//
// Run drives registered or ad-hoc scenarios directly:
//
//	result, err := perf.Run(ctx, perf.Options{
//	    Duration:  time.Minute,
//	    TargetRPS: 20,
//	    UserCount: 10,
//	}, &perf.Scenario{Name: "browse", Root: browse})
//
//	fmt.Printf("completed %d cycles, error rate %.2f%%\n",
//	    result.Completed, result.Snapshot.ErrorRate()*100)
package perf
