// Stub of the Anthropic Messages API for local development: run it, point
// ANTHROPIC_BASE_URL at it, and every generation returns a canned story.
package main

import (
	"encoding/json"
	"log"
	"net/http"
)

func main() {
	http.HandleFunc("/v1/messages", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		storyJSON, _ := json.Marshal(map[string]string{
			"title":   "The Moonlight Voyage",
			"content": "Once upon a time, a brave child set sail across a sea of stars.\n\nThe waves hummed a quiet lullaby, and by the time the little boat drifted home, the whole world was fast asleep.",
		})

		response := map[string]any{
			"id":   "msg_stub",
			"type": "message",
			"role": "assistant",
			"content": []map[string]string{
				{"type": "text", "text": string(storyJSON)},
			},
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(response)

		log.Printf("Served stub generation: %s %s", r.Method, r.URL.Path)
	})

	log.Println("Stub provider starting on port 9000")
	http.ListenAndServe(":9000", nil)
}
