// Package tdz is a local knowledge engine for tasks, memories, ideas and
// code chunks. A Service stores artifacts in project containers, embeds
// their text with a sentence encoder and answers semantic, hybrid and
// aggregate queries from an in-memory embedding cache.
//
// Open a service on a root directory and close it when done:
//
//	svc, err := tdz.Open(ctx, root)
//	if err != nil {
//		return err
//	}
//	defer svc.Close()
//
//	task := core.Task{Action: "Write documentation for the REST API"}
//	a, err := svc.CreateTask(ctx, "", task, "docs")
//	results, err := svc.SemanticSearch(ctx, "api documentation", search.Params{})
package tdz
