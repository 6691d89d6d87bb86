package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"fashionAdvisorAi/internal/config"
	"fashionAdvisorAi/internal/storage"
)

// prefs is a maintenance tool for the persisted preference records:
// inspect what the app has stored, or clear individual keys.
func main() {
	var (
		list       = flag.Bool("list", false, "Print all stored preference records")
		clearKey   = flag.String("clear", "", "Remove one key (feedback|liked|saved)")
		clearAll   = flag.Bool("clear-all", false, "Remove every preference record")
		unlikeName = flag.String("unlike", "", "Remove a style name from the liked set")
	)
	flag.Parse()

	cfg := config.FromEnv()

	ctx := context.Background()
	kv, err := storage.NewKeyValue(ctx, cfg.DatabaseURL, cfg.StatePath)
	if err != nil {
		log.Fatalf("init preference store: %v", err)
	}
	defer kv.Close()
	prefs := storage.NewPreferences(kv)

	switch {
	case *list:
		fmt.Printf("saved: %q\n", prefs.LoadSaved(ctx))
		fmt.Println("liked:")
		for _, name := range prefs.LoadLiked(ctx) {
			fmt.Printf("  %s\n", name)
		}
		fmt.Println("feedback:")
		for _, r := range prefs.LoadFeedback(ctx) {
			fmt.Printf("  %-10s %s\n", r.Feedback, r.SuggestionID)
		}
	case *clearAll:
		for _, key := range []string{storage.KeyFeedback, storage.KeyLiked, storage.KeySaved} {
			if err := kv.Remove(ctx, key); err != nil {
				log.Fatalf("remove %s: %v", key, err)
			}
		}
		fmt.Println("cleared all preference records")
	case *clearKey != "":
		key, ok := map[string]string{
			"feedback": storage.KeyFeedback,
			"liked":    storage.KeyLiked,
			"saved":    storage.KeySaved,
		}[*clearKey]
		if !ok {
			log.Fatalf("unknown key %q (want feedback, liked or saved)", *clearKey)
		}
		if err := kv.Remove(ctx, key); err != nil {
			log.Fatalf("remove %s: %v", key, err)
		}
		fmt.Printf("cleared %s\n", *clearKey)
	case *unlikeName != "":
		liked := prefs.LoadLiked(ctx)
		found := false
		for _, name := range liked {
			if name == *unlikeName {
				found = true
				break
			}
		}
		if !found {
			log.Fatalf("%q is not in the liked set", *unlikeName)
		}
		prefs.ToggleLiked(ctx, *unlikeName)
		fmt.Printf("removed %q from liked styles\n", *unlikeName)
	default:
		flag.Usage()
	}
}
