// gen-diagrams generates sample diagram outputs for README documentation.
// Run: go run ./cmd/gen-diagrams
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rendis/opflow/internal/diagram"
	"github.com/rendis/opflow/pkg/schema"
)

// asyncActions marks the sample's suspending actions without building a
// registry.
type asyncActions map[string]bool

func (a asyncActions) IsAsync(name string) bool { return a[name] }

func main() {
	// Order flow: fetch -> price -> in stock? -> notify fan-out -> retry ship
	def := &schema.FlowDefinition{
		Name: "order",
		Steps: []schema.StepDefinition{
			{ID: "fetch", Action: "http", Params: map[string]any{"url": "https://shop.example/orders/${{ input.id }}"}},
			{ID: "price", Action: "jq", Params: map[string]any{"expression": "[.body.items[].price] | add"}},
			{ID: "discount", Type: schema.StepTypeIf, Condition: "input > 100", Steps: []schema.StepDefinition{
				{ID: "apply", Action: "cel", Params: map[string]any{"expression": "input * 0.9"}},
			}},
			{ID: "notify", Type: schema.StepTypeParallel, Limit: 2, Steps: []schema.StepDefinition{
				{ID: "email", Action: "http"},
				{ID: "audit", Action: "log"},
			}},
			{ID: "ship", Type: schema.StepTypeRetry, Max: 3, Condition: "output.status_code == 200", Steps: []schema.StepDefinition{
				{ID: "post", Action: "http"},
			}},
		},
	}

	model, err := diagram.Build(def, asyncActions{"http": true, "sleep": true})
	if err != nil {
		fmt.Fprintf(os.Stderr, "build error: %v\n", err)
		os.Exit(1)
	}

	outDir := filepath.Join("docs", "assets")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "create %s: %v\n", outDir, err)
		os.Exit(1)
	}

	ascii := diagram.RenderASCII(model)
	write(filepath.Join(outDir, "diagram-ascii.txt"), []byte(ascii))
	fmt.Println("=== ASCII ===")
	fmt.Println(ascii)

	mermaid := diagram.RenderMermaid(model)
	write(filepath.Join(outDir, "diagram-mermaid.md"), []byte("```mermaid\n"+mermaid+"\n```\n"))
	fmt.Println("=== Mermaid ===")
	fmt.Println(mermaid)

	png, err := diagram.RenderImage(context.Background(), model, diagram.ImagePNG)
	if err != nil {
		fmt.Fprintf(os.Stderr, "image error: %v\n", err)
		os.Exit(1)
	}
	write(filepath.Join(outDir, "diagram-image.png"), png)
	fmt.Printf("=== PNG written (%d bytes) ===\n", len(png))
}

func write(path string, data []byte) {
	if err := os.WriteFile(path, data, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "write %s: %v\n", path, err)
		os.Exit(1)
	}
}
