// Command schema emits JSON schemas for the wire protocol so client
// implementations can validate their frames without importing the server.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/invopop/jsonschema"

	"shotcounter/server/internal/directory"
	"shotcounter/server/internal/net/proto"
)

func main() {
	var outDir string
	flag.StringVar(&outDir, "out", "", "directory to write the JSON schemas")
	flag.Parse()

	if outDir == "" {
		fmt.Fprintln(os.Stderr, "--out is required")
		os.Exit(1)
	}

	for name, schema := range buildSchemas() {
		path := filepath.Join(outDir, name+".schema.json")
		if err := writeSchema(path, schema); err != nil {
			fmt.Fprintf(os.Stderr, "failed to write %s: %v\n", path, err)
			os.Exit(1)
		}
	}
}

func buildSchemas() map[string]*jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: true,
	}

	clientMessage := reflector.Reflect(new(proto.ClientMessage))
	clientMessage.Title = "Client Message"
	clientMessage.Description = "Inbound websocket frame: intent, heartbeat or resync request."

	broadcast := reflector.Reflect(new(proto.Broadcast))
	broadcast.Title = "Broadcast"
	broadcast.Description = "Outbound state frame: a full snapshot or a reload signal."

	join := reflector.Reflect(new(proto.JoinResponseV1))
	join.Title = "Join Response"
	join.Description = "First frame a subscriber receives, carrying the full snapshot."

	character := reflector.Reflect(new(directory.Record))
	character.Title = "Character Record"
	character.Description = "Directory entry describing a character or mook group template."

	return map[string]*jsonschema.Schema{
		"client_message": clientMessage,
		"broadcast":      broadcast,
		"join_response":  join,
		"character":      character,
	}
}

func writeSchema(outPath string, schema *jsonschema.Schema) error {
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("create schema directory: %w", err)
	}

	tmpPath := outPath + ".tmp"
	if err := os.WriteFile(tmpPath, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write temp schema: %w", err)
	}

	if err := os.Rename(tmpPath, outPath); err != nil {
		return fmt.Errorf("replace schema: %w", err)
	}

	return nil
}
