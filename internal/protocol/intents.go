package protocol

import (
	"errors"
	"fmt"

	json "github.com/goccy/go-json"
)

// ErrUnknownIntent is returned when an envelope carries a type the server
// does not accept from clients.
var ErrUnknownIntent = errors.New("protocol: unknown intent type")

// Intent is a validated-shape client command. Payload semantics are checked
// by the ingest layer; this union only guarantees the message parsed.
type Intent interface {
	intentType() string
}

func (MoveIntent) intentType() string    { return TypePlayerMove }
func (AttackIntent) intentType() string  { return TypePlayerAttack }
func (AbilityIntent) intentType() string { return TypePlayerAbility }
func (ChatIntent) intentType() string    { return TypeChatSend }
func (RespawnIntent) intentType() string { return TypePlayerRespawn }

// DecodeIntent parses the payload of a client envelope into its tagged
// variant. Join is not an intent; it is handled by the session handshake.
func DecodeIntent(env Envelope) (Intent, error) {
	switch env.Type {
	case TypePlayerMove:
		var m MoveIntent
		if err := json.Unmarshal(env.Data, &m); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Type, err)
		}
		return m, nil
	case TypePlayerAttack:
		var a AttackIntent
		if err := json.Unmarshal(env.Data, &a); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Type, err)
		}
		return a, nil
	case TypePlayerAbility:
		var a AbilityIntent
		if err := json.Unmarshal(env.Data, &a); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Type, err)
		}
		return a, nil
	case TypeChatSend:
		var c ChatIntent
		if err := json.Unmarshal(env.Data, &c); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Type, err)
		}
		return c, nil
	case TypePlayerRespawn:
		return RespawnIntent{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownIntent, env.Type)
	}
}
