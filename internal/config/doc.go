// Package config provides the service configuration model for qkrun.
//
// Configuration is YAML with ${VAR} and ${VAR:-default} environment
// substitution. Missing sections take the values from Default:
//
//	cfg, err := config.Load("qkrun.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := config.Validate(cfg); err != nil {
//	    log.Fatal(err)
//	}
//
// # Starter file
//
// StarterWatcher serves the text shown in a fresh editor. It watches the
// file with fsnotify and swaps in new content only when it parses as a
// valid rules configuration:
//
//	w, err := config.NewStarterWatcher(path, config.WithLogger(logger))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := w.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer w.Stop()
//
//	text := w.Text()
package config
