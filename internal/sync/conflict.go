package sync

import (
	"reflect"
	"sort"

	"github.com/driftwatch/deltasync/internal/domain"
	"github.com/driftwatch/deltasync/internal/logger"

	"github.com/rs/zerolog"
)

// Resolution is the verdict for one contested entity. When Resolved is true,
// MergedData is the full payload to apply; otherwise FieldConflicts and
// SuggestedData describe what needs human review.
type Resolution struct {
	Resolved       bool
	Winner         string
	MergedData     map[string]any
	FieldConflicts []domain.FieldConflict
	SuggestedData  map[string]any
	Reason         string
}

// Resolver applies a conflict policy to a client/server delta pair. It is
// stateless and deterministic: the same inputs always produce the same
// verdict regardless of which side submitted them.
type Resolver struct {
	log zerolog.Logger
}

func NewResolver(log logger.Logger) *Resolver {
	return &Resolver{log: log.With().Str("module", "conflict").Logger()}
}

func (r *Resolver) Resolve(client, server domain.SyncDelta, policy domain.ConflictPolicy) Resolution {
	switch policy {
	case domain.PolicyLastWriteWins:
		return r.lastWriteWins(client, server)
	case domain.PolicyClientWins:
		return Resolution{Resolved: true, Winner: "client", MergedData: client.Data}
	case domain.PolicyServerWins:
		return Resolution{Resolved: true, Winner: "server", MergedData: server.Data}
	case domain.PolicyOperationalTransform:
		return r.operationalTransform(client, server)
	case domain.PolicyManualResolution:
		return manualRequired("manual resolution policy", nil, nil)
	default:
		return manualRequired("unknown policy", nil, nil)
	}
}

// lastWriteWins picks the side with the later modification timestamp. Equal
// timestamps fall back to comparing etags so the verdict stays deterministic
// no matter which replica evaluates it.
func (r *Resolver) lastWriteWins(client, server domain.SyncDelta) Resolution {
	switch {
	case client.LastModifiedAt.After(server.LastModifiedAt):
		return Resolution{Resolved: true, Winner: "client", MergedData: client.Data}
	case client.LastModifiedAt.Before(server.LastModifiedAt):
		return Resolution{Resolved: true, Winner: "server", MergedData: server.Data}
	case client.ETag < server.ETag:
		return Resolution{Resolved: true, Winner: "client", MergedData: client.Data}
	default:
		return Resolution{Resolved: true, Winner: "server", MergedData: server.Data}
	}
}

// operationalTransform merges field-level edits against the common ancestor.
// Fields changed on only one side merge cleanly; fields changed on both
// sides to different values are contested and escalate the whole entity.
func (r *Resolver) operationalTransform(client, server domain.SyncDelta) Resolution {
	base := client.BaseData
	if base == nil {
		base = map[string]any{}
	}

	merged, conflicts := threeWayMerge(base, client.Data, server.Data)
	if len(conflicts) > 0 {
		r.log.Debug().
			Str("entityType", client.EntityType).
			Str("entityID", client.EntityID).
			Int("contested", len(conflicts)).
			Msg("merge left contested fields")
		return manualRequired("merge conflict", conflicts, merged)
	}

	return Resolution{Resolved: true, Winner: "merged", MergedData: merged}
}

// threeWayMerge walks the union of keys across base, client and server. For
// each field: unchanged on both sides keeps the base value, changed on one
// side takes that side, changed on both sides to the same value takes it,
// changed on both sides to different values is a conflict. Contested fields
// keep the server value in the merged map so the suggestion is usable as-is.
func threeWayMerge(base, client, server map[string]any) (map[string]any, []domain.FieldConflict) {
	keys := map[string]struct{}{}
	for k := range base {
		keys[k] = struct{}{}
	}
	for k := range client {
		keys[k] = struct{}{}
	}
	for k := range server {
		keys[k] = struct{}{}
	}

	fields := make([]string, 0, len(keys))
	for k := range keys {
		fields = append(fields, k)
	}
	sort.Strings(fields)

	merged := make(map[string]any, len(fields))
	var conflicts []domain.FieldConflict

	for _, field := range fields {
		baseVal, inBase := base[field]
		clientVal, inClient := client[field]
		serverVal, inServer := server[field]

		clientChanged := inClient != inBase || !reflect.DeepEqual(clientVal, baseVal)
		serverChanged := inServer != inBase || !reflect.DeepEqual(serverVal, baseVal)

		switch {
		case !clientChanged && !serverChanged:
			if inBase {
				merged[field] = baseVal
			}
		case clientChanged && !serverChanged:
			if inClient {
				merged[field] = clientVal
			}
		case !clientChanged && serverChanged:
			if inServer {
				merged[field] = serverVal
			}
		case reflect.DeepEqual(clientVal, serverVal) && inClient == inServer:
			if inClient {
				merged[field] = clientVal
			}
		default:
			conflicts = append(conflicts, domain.FieldConflict{
				Field:       field,
				ClientValue: clientVal,
				ServerValue: serverVal,
				BaseValue:   baseVal,
			})
			if inServer {
				merged[field] = serverVal
			}
		}
	}

	return merged, conflicts
}

func manualRequired(reason string, conflicts []domain.FieldConflict, suggested map[string]any) Resolution {
	return Resolution{
		Resolved:       false,
		FieldConflicts: conflicts,
		SuggestedData:  suggested,
		Reason:         reason,
	}
}
