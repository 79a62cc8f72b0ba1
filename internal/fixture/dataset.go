// Package fixture serves an in-memory dataset over the wire formats spoken
// by the rest and rpc transports. It backs the transport tests and the
// `perry serve` command.
package fixture

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/perry-go/perry/internal/adapter"
	"github.com/perry-go/perry/internal/transport/memory"
)

// DefaultPrimaryKey is the primary key used when a request does not name one
const DefaultPrimaryKey = "id"

// Dataset holds the rows served by the fixture services, one collection
// per service name
type Dataset struct {
	*memory.Store
}

// NewDataset creates an empty dataset
func NewDataset() *Dataset {
	return &Dataset{Store: memory.NewStore()}
}

// Load seeds collections from a JSON document of the form
// {"people": [{"id": 1, "name": "Ada"}, ...]}
func (d *Dataset) Load(r io.Reader) error {
	var doc map[string][]adapter.Row
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return fmt.Errorf("failed to decode dataset: %w", err)
	}
	for collection, rows := range doc {
		d.Seed(collection, rows...)
	}
	return nil
}

// LoadFile seeds collections from a JSON file, see Load
func (d *Dataset) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open dataset: %w", err)
	}
	defer f.Close()
	return d.Load(f)
}

func (d *Dataset) exists(collection, pk string, id interface{}) bool {
	for _, row := range d.Rows(collection) {
		if row[pk] != nil && fmt.Sprint(row[pk]) == fmt.Sprint(id) {
			return true
		}
	}
	return false
}
