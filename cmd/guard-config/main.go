package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/oarkflow/guard"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	switch cmd {
	case "convert":
		handleConvert()
	case "validate":
		handleValidate()
	case "stats":
		handleStats()
	default:
		fmt.Printf("Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("guard-config - Configuration tool for guard")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  guard-config convert <input> <output>  - Convert between formats")
	fmt.Println("  guard-config validate <file>           - Validate configuration")
	fmt.Println("  guard-config stats <file>              - Show configuration statistics")
	fmt.Println()
	fmt.Println("Supported formats: .gcl, .yaml, .yml, .json")
}

func handleConvert() {
	if len(os.Args) < 4 {
		fmt.Println("Usage: guard-config convert <input> <output>")
		os.Exit(1)
	}

	inputFile := os.Args[2]
	outputFile := os.Args[3]

	cfg, err := guard.LoadFile(inputFile)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	if err := saveConfig(cfg, outputFile); err != nil {
		fmt.Printf("Error saving config: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Converted %s -> %s\n", inputFile, outputFile)
}

func handleValidate() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: guard-config validate <file>")
		os.Exit(1)
	}

	filename := os.Args[2]
	cfg, err := guard.LoadFile(filename)
	if err != nil {
		fmt.Printf("Invalid configuration: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Printf("Invalid configuration: %v\n", err)
		os.Exit(1)
	}
	if _, _, err := guard.NewEngineFromConfig(cfg); err != nil {
		fmt.Printf("Configuration does not materialize: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("%s is valid\n", filename)
}

func handleStats() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: guard-config stats <file>")
		os.Exit(1)
	}

	filename := os.Args[2]
	cfg, err := guard.LoadFile(filename)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	s := cfg.Stats()
	fmt.Printf("Configuration: %s\n", filename)
	if cfg.Tenant != "" {
		fmt.Printf("  Tenant:         %s\n", cfg.Tenant)
	}
	fmt.Printf("  Entities:       %d\n", s.Entities)
	fmt.Printf("  Edges:          %d\n", s.Edges)
	fmt.Printf("  Resources:      %d\n", s.Resources)
	fmt.Printf("  Authorizations: %d\n", s.Authorizations)
	fmt.Printf("  Rules:          %d\n", s.Rules)
}

func saveConfig(cfg *guard.Config, path string) error {
	var data []byte
	var err error
	switch {
	case strings.HasSuffix(path, ".json"):
		data, err = cfg.ToJSON()
	case strings.HasSuffix(path, ".gcl"):
		data = []byte(guard.EncodeDSL(cfg))
	default:
		data, err = cfg.ToYAML()
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
