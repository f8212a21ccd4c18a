package geo

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// Polygon is a polygon's outer ring as [lon, lat] vertices. The ring
// is stored unclosed; the edge from the last vertex back to the first
// is implied.
type Polygon [][2]float64

// Contains reports whether the point lies inside the ring using a
// standard ray cast over its edges. Points exactly on an edge may land
// on either side, but the answer is stable for a given ring.
func (pg Polygon) Contains(lat, lon float64) bool {
	inside := false
	for i := range pg {
		p0, p1 := pg[i], pg[(i+1)%len(pg)]
		if (p0[1] <= lat && lat < p1[1]) || (p1[1] <= lat && lat < p0[1]) {
			x := p0[0] + (lat-p0[1])*(p1[0]-p0[0])/(p1[1]-p0[1])
			if x > lon {
				inside = !inside
			}
		}
	}
	return inside
}

// Polygon files change rarely and are read on every filter pass, so
// parsed rings are cached by path for the life of the process. The
// boundary watcher replaces an entry when the file changes on disk.
var (
	cacheMu sync.RWMutex
	cache   = map[string]Polygon{}
)

// LoadPolygon reads a polygon ring from a JSON file of [lon, lat]
// pairs. Repeated loads of the same path return the cached ring
// without touching the filesystem.
func LoadPolygon(path string) (Polygon, error) {
	cacheMu.RLock()
	pg, ok := cache[path]
	cacheMu.RUnlock()
	if ok {
		return pg, nil
	}

	pg, err := readPolygon(path)
	if err != nil {
		return nil, err
	}

	cacheMu.Lock()
	cache[path] = pg
	cacheMu.Unlock()
	return pg, nil
}

func readPolygon(path string) (Polygon, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("boundary polygon %s: %w", path, err)
	}
	var ring [][2]float64
	if err := json.Unmarshal(data, &ring); err != nil {
		return nil, fmt.Errorf("boundary polygon %s: %w", path, err)
	}
	if len(ring) < 3 {
		return nil, fmt.Errorf("boundary polygon %s: ring has %d vertices, need at least 3", path, len(ring))
	}
	return Polygon(ring), nil
}
