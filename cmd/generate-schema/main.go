package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/invopop/jsonschema"

	"github.com/driftfs/driftfs/pkg/config"
)

func main() {
	output := flag.String("output", "config.schema.json", "Path to write the schema to, - for stdout")
	flag.Parse()

	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true, // Inline all definitions for simplicity
	}

	schema := reflector.Reflect(&config.Config{})
	schema.ID = "https://driftfs.dev/config.schema.json"
	schema.Title = "DriftFS Configuration"
	schema.Description = "Configuration schema for the DriftFS server"
	schema.Version = "1.0.0"

	schemaJSON, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error marshaling schema: %v\n", err)
		os.Exit(1)
	}
	schemaJSON = append(schemaJSON, '\n')

	if *output == "-" {
		if _, err := os.Stdout.Write(schemaJSON); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing schema: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := os.WriteFile(*output, schemaJSON, 0644); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing schema file: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("JSON schema written to %s\n", *output)
}
