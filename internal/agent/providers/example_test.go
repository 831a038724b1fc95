package providers_test

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/haasonsaas/concierge/internal/agent"
	"github.com/haasonsaas/concierge/internal/agent/providers"
)

func ExampleNew() {
	provider, err := providers.New("openai", providers.Config{
		APIKey: os.Getenv("OPENAI_API_KEY"),
	})
	if err != nil {
		log.Fatal(err)
	}

	chunks, err := provider.Complete(context.Background(), &agent.CompletionRequest{
		System:      "You answer questions about company policy.",
		Messages:    []agent.CompletionMessage{{Role: "user", Content: "When is the ERTC deadline?"}},
		Temperature: agent.Float64(0),
	})
	if err != nil {
		log.Fatal(err)
	}

	for chunk := range chunks {
		if chunk.Error != nil {
			log.Printf("stream error: %v", chunk.Error)
			break
		}
		fmt.Print(chunk.Text)
	}
}
