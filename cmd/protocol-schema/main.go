// Command protocol-schema emits a JSON schema for the wire contract so the
// browser client can validate its codec against the server's.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/invopop/jsonschema"

	"emberfall/server/internal/protocol"
)

// messages is every payload in the versioned contract, keyed by wire type.
var messages = map[string]any{
	protocol.TypePlayerJoin:        protocol.JoinRequest{},
	protocol.TypeGameInit:          protocol.GameInit{},
	protocol.TypePlayerJoined:      protocol.PlayerJoined{},
	protocol.TypePlayerReconnected: protocol.PlayerReconnected{},
	protocol.TypePlayerLeft:        protocol.PlayerLeft{},
	protocol.TypePlayerMove:        protocol.MoveIntent{},
	protocol.TypePlayerMoved:       protocol.PlayerMoved{},
	protocol.TypePlayerAttack:      protocol.AttackIntent{},
	protocol.TypePlayerDamaged:     protocol.PlayerDamaged{},
	protocol.TypePlayerAbility:     protocol.AbilityIntent{},
	protocol.TypePlayerUsedAbility: protocol.PlayerUsedAbility{},
	protocol.TypePlayerRespawn:     protocol.RespawnIntent{},
	protocol.TypePlayerRespawned:   protocol.PlayerRespawned{},
	protocol.TypeWorldUpdate:       protocol.WorldUpdate{},
	protocol.TypeEnemyDamaged:      protocol.EnemyDamaged{},
	protocol.TypeEnemyRespawned:    protocol.EnemyRespawned{},
	protocol.TypeChatSend:          protocol.ChatIntent{},
	protocol.TypeChatMessage:       protocol.ChatMessage{},
	protocol.TypeServerShutdown:    protocol.ServerShutdown{},
}

func main() {
	var outPath string
	flag.StringVar(&outPath, "out", "", "path to write the JSON schema")
	flag.Parse()

	if outPath == "" {
		fmt.Fprintln(os.Stderr, "--out is required")
		os.Exit(1)
	}

	if err := writeSchema(outPath, buildSchema()); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write schema: %v\n", err)
		os.Exit(1)
	}
}

func buildSchema() map[string]*jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: true,
	}
	schemas := make(map[string]*jsonschema.Schema, len(messages)+1)
	schemas["envelope"] = reflector.Reflect(new(protocol.Envelope))
	for msgType, payload := range messages {
		schemas[msgType] = reflector.Reflect(payload)
	}
	return schemas
}

func writeSchema(outPath string, schemas map[string]*jsonschema.Schema) error {
	document := struct {
		Title    string                        `json:"title"`
		Version  int                           `json:"version"`
		Messages map[string]*jsonschema.Schema `json:"messages"`
	}{
		Title:    "Emberfall Relay Protocol",
		Version:  protocol.Version,
		Messages: schemas,
	}

	data, err := json.MarshalIndent(document, "", "  ")
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
