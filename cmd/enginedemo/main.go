// Command enginedemo wires up the engine against a config file and drives
// one direct Chat call (or ChatStream with -stream). It is not an HTTP
// server or bootstrap — the proxy
// surface is out of scope — just a thin harness that exercises the
// Engine API end to end.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"

	"github.com/dispatchlab/llmengine/internal/chatrequest"
	"github.com/dispatchlab/llmengine/internal/config"
	"github.com/dispatchlab/llmengine/internal/engine"
	"github.com/dispatchlab/llmengine/internal/registry"
	"github.com/dispatchlab/llmengine/internal/tokenizer"

	_ "github.com/dispatchlab/llmengine/internal/provider/azure"
	_ "github.com/dispatchlab/llmengine/internal/provider/cohere"
	_ "github.com/dispatchlab/llmengine/internal/provider/openai"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to provider/catalog config")
	providerID := flag.String("provider", "openai", "registered provider id to dispatch to")
	model := flag.String("model", "gpt-4o", "model name, must exist in the provider's catalog")
	prompt := flag.String("prompt", "Hello", "chat_input text")
	stream := flag.Bool("stream", false, "use the streaming call surface")
	flag.Parse()

	cat, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	eng := engine.New(registry.Default, cat, tokenizer.NewAccessor())

	req := chatrequest.ChatRequest{
		Model:     *model,
		ChatInput: chatrequest.ChatInput{Text: prompt},
		IsStream:  *stream,
		Retries:   2,
	}

	ctx := context.Background()

	if !*stream {
		env, err := eng.Chat(ctx, *providerID, req)
		if err != nil {
			log.Fatalf("chat failed: %v", err)
		}
		printEnvelope(env)
		return
	}

	seq, err := eng.ChatStream(ctx, *providerID, req)
	if err != nil {
		log.Fatalf("stream open failed: %v", err)
	}
	for env, err := range seq {
		if err != nil {
			log.Fatalf("stream error: %v", err)
		}
		printEnvelope(env)
	}
}

func printEnvelope(env any) {
	out, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		log.Fatalf("failed to encode envelope: %v", err)
	}
	fmt.Println(string(out))
}
