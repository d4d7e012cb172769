// Package dedup collapses exact and near-duplicate knowledge items within a batch.
package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"

	"github.com/josephgoksu/KnowledgeWing/internal/config"
	"github.com/josephgoksu/KnowledgeWing/internal/scoring"
	"github.com/josephgoksu/KnowledgeWing/internal/utils"
)

// Groups maps a master item id to its duplicate ids in arrival order.
type Groups map[string][]string

// Result is the outcome of duplicate detection over one batch.
type Result struct {
	Groups Groups
	// Unique holds the items that survive, masters included, in arrival order.
	Unique []scoring.Item
	// DuplicatesRemoved is the number of items collapsed into a master.
	DuplicatesRemoved int
	// Skipped lists ids kept without comparison because they could not be fingerprinted.
	Skipped []string
}

// Detector finds duplicates using a normalized content hash for exact matches
// and token-set Jaccard similarity for near matches.
type Detector struct {
	cfg    config.DedupConfig
	logger *slog.Logger
}

// NewDetector creates a detector.
func NewDetector(cfg config.DedupConfig, logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.Default().With("component", "dedup")
	}
	return &Detector{cfg: cfg, logger: logger}
}

type master struct {
	id     string
	tokens map[string]struct{}
}

// Detect groups items under the first-seen master. An item repeating the id
// of a kept item is a duplicate of it whatever its content, since both would
// land in the same stored entry. Other items that cannot be fingerprinted are
// kept as unique and never grouped.
func (d *Detector) Detect(projectID string, items []scoring.Item) Result {
	res := Result{Groups: make(Groups)}
	byHash := make(map[string]string)
	keptIDs := make(map[string]bool)
	var masters []master

	for _, item := range items {
		if item.ID != "" && keptIDs[item.ID] {
			d.logger.Debug("repeated item id collapsed", "project", projectID, "id", item.ID)
			res.Groups[item.ID] = append(res.Groups[item.ID], item.ID)
			res.DuplicatesRemoved++
			continue
		}

		normalized := utils.NormalizeContent(item.Content)
		if item.ID == "" || normalized == "" {
			d.logger.Debug("item kept without dedup", "project", projectID, "id", item.ID)
			res.Skipped = append(res.Skipped, item.ID)
			res.Unique = append(res.Unique, item)
			if item.ID != "" {
				keptIDs[item.ID] = true
			}
			continue
		}

		hash := HashNormalized(item.Content)
		if masterID, ok := byHash[hash]; ok {
			res.Groups[masterID] = append(res.Groups[masterID], item.ID)
			res.DuplicatesRemoved++
			continue
		}

		tokens := utils.TokenSet(normalized)
		if masterID, ok := d.nearestMaster(masters, tokens); ok {
			res.Groups[masterID] = append(res.Groups[masterID], item.ID)
			res.DuplicatesRemoved++
			continue
		}

		byHash[hash] = item.ID
		keptIDs[item.ID] = true
		masters = append(masters, master{id: item.ID, tokens: tokens})
		res.Unique = append(res.Unique, item)
	}
	return res
}

// nearestMaster returns the earliest master whose similarity reaches the threshold.
func (d *Detector) nearestMaster(masters []master, tokens map[string]struct{}) (string, bool) {
	if len(tokens) < d.cfg.MinTokens || d.cfg.NearDuplicateThreshold <= 0 {
		return "", false
	}
	for _, m := range masters {
		if len(m.tokens) < d.cfg.MinTokens {
			continue
		}
		// Jaccard can't reach the threshold when the set sizes differ too much.
		small, large := len(m.tokens), len(tokens)
		if small > large {
			small, large = large, small
		}
		if float64(small)/float64(large) < d.cfg.NearDuplicateThreshold {
			continue
		}
		if utils.Jaccard(m.tokens, tokens) >= d.cfg.NearDuplicateThreshold {
			return m.id, true
		}
	}
	return "", false
}

// HashNormalized returns the SHA-256 of content lowercased with whitespace collapsed.
func HashNormalized(content string) string {
	h := sha256.Sum256([]byte(utils.NormalizeContent(content)))
	return hex.EncodeToString(h[:])
}
