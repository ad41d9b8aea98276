package paints

import (
	"context"
	"sync"

	"github.com/buger/jsonparser"
	"golang.org/x/sync/errgroup"

	"github.com/chatpaint/paints/pkg/logger"
	"github.com/chatpaint/paints/pkg/models"
)

// DefaultParseConcurrency bounds how many descriptions LoadPaints parses at
// once. URL paints block on the image store, so bulk loads parse in parallel.
const DefaultParseConcurrency = 8

// Registry stores paints by id and the paint currently assigned to each user.
//
// Both maps are guarded by one RWMutex and always change together. Values in
// paintMap are the same *models.Paint pointers held in knownPaints.
// Parsing, including image lookups, never happens while the lock is held.
type Registry struct {
	parser *Parser
	logger logger.Logger

	// ParseConcurrency overrides DefaultParseConcurrency. Set it before the
	// registry is shared.
	ParseConcurrency int

	mu          sync.RWMutex
	knownPaints map[string]*models.Paint
	paintMap    map[string]*models.Paint
}

// LoadStats summarizes one LoadPaints call.
type LoadStats struct {
	Parsed   int
	Skipped  int
	Assigned int
}

// NewRegistry creates an empty Registry that parses descriptions with parser.
func NewRegistry(parser *Parser, log logger.Logger) *Registry {
	if parser == nil {
		parser = NewParser(nil, log)
	}
	return &Registry{
		parser:      parser,
		logger:      logger.OrNop(log),
		knownPaints: make(map[string]*models.Paint),
		paintMap:    make(map[string]*models.Paint),
	}
}

// GetPaint returns the paint assigned to user.
func (r *Registry) GetPaint(user string) (*models.Paint, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.paintMap[user]
	return p, ok
}

// Paint returns the known paint with the given id.
func (r *Registry) Paint(id string) (*models.Paint, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.knownPaints[id]
	return p, ok
}

// Len returns the number of known paints and of users with an assignment.
func (r *Registry) Len() (paints, users int) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.knownPaints), len(r.paintMap)
}

// AddPaint parses description and stores it unless a paint with the same id
// is already known. It does not touch user assignments. It reports whether a
// paint was added; unparseable descriptions are dropped.
func (r *Registry) AddPaint(ctx context.Context, description []byte) bool {
	id := PaintID(description)

	r.mu.RLock()
	_, known := r.knownPaints[id]
	r.mu.RUnlock()
	if known {
		return false
	}

	paint, err := r.parser.Parse(ctx, description)
	if err != nil {
		r.logger.Debug("dropping paint", "paint_id", id, "error", err)
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// another AddPaint may have inserted it while we were parsing
	if _, known := r.knownPaints[paint.ID()]; known {
		return false
	}
	r.knownPaints[paint.ID()] = paint

	return true
}

// AssignPaintToUser assigns a known paint to user, replacing any previous
// assignment. Unknown paint ids are ignored.
func (r *Registry) AssignPaintToUser(paintID, user string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	paint, ok := r.knownPaints[paintID]
	if !ok {
		return false
	}
	r.paintMap[user] = paint

	return true
}

// ClearPaintFromUser removes user's assignment only if it currently points at
// paintID, so a late clear cannot undo a newer assignment.
func (r *Registry) ClearPaintFromUser(paintID, user string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	paint, ok := r.paintMap[user]
	if !ok || paint.ID() != paintID {
		return false
	}
	delete(r.paintMap, user)

	return true
}

type loadedPaint struct {
	paint *models.Paint
	users []string
}

// LoadPaints applies a bulk cosmetics payload: an object with a `paints`
// array whose entries are paint descriptions carrying a `users` array.
//
// Every entry is parsed again, even if its id is known, and overwrites the
// stored paint; each listed user is then assigned that paint. Entries that
// fail to parse are skipped and their users keep their current assignment.
// Paints and assignments missing from the payload are left in place.
//
// All entries are parsed before the write lock is taken and the whole batch
// is applied in one critical section.
func (r *Registry) LoadPaints(ctx context.Context, payload []byte) LoadStats {
	var descriptions [][]byte
	_, err := jsonparser.ArrayEach(payload, func(value []byte, dataType jsonparser.ValueType, _ int, err error) {
		if err != nil {
			return
		}
		descriptions = append(descriptions, value)
	}, "paints")
	if err != nil {
		r.logger.Warn("cosmetics payload has no paints array", "error", err)
		return LoadStats{}
	}

	loaded := r.parseAll(ctx, descriptions)

	var stats LoadStats

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, entry := range loaded {
		if entry.paint == nil {
			stats.Skipped++
			continue
		}
		stats.Parsed++

		r.knownPaints[entry.paint.ID()] = entry.paint
		for _, user := range entry.users {
			r.paintMap[user] = entry.paint
			stats.Assigned++
		}
	}

	return stats
}

// parseAll parses descriptions concurrently. The result keeps payload order;
// a nil paint marks an entry that failed to parse.
func (r *Registry) parseAll(ctx context.Context, descriptions [][]byte) []loadedPaint {
	loaded := make([]loadedPaint, len(descriptions))

	limit := r.ParseConcurrency
	if limit <= 0 {
		limit = DefaultParseConcurrency
	}

	var g errgroup.Group
	g.SetLimit(limit)

	for i, description := range descriptions {
		i, description := i, description
		g.Go(func() error {
			paint, err := r.parser.Parse(ctx, description)
			if err != nil {
				r.logger.Debug("skipping paint in bulk load", "paint_id", PaintID(description), "error", err)
				return nil
			}
			loaded[i] = loadedPaint{paint: paint, users: paintUsers(description)}
			return nil
		})
	}
	_ = g.Wait()

	return loaded
}

func paintUsers(description []byte) []string {
	var users []string
	_, _ = jsonparser.ArrayEach(description, func(value []byte, dataType jsonparser.ValueType, _ int, err error) {
		if err != nil || dataType != jsonparser.String {
			return
		}
		user, err := jsonparser.ParseString(value)
		if err != nil || user == "" {
			return
		}
		users = append(users, user)
	}, "users")
	return users
}
