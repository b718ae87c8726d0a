package room

import (
	"time"

	"golang.org/x/exp/slices"
)

type Track struct {
	Id        string    `json:"id"`
	Name      string    `json:"name"`
	URI       string    `json:"uri"`
	AddedById string    `json:"added_by_id"`
	AddedAt   time.Time `json:"added_at"`
}

// playlist is the ordered track list of a single room. All methods are
// called with the owning room's lock held.
type playlist struct {
	list []Track
}

func (p playlist) length() int {
	return len(p.list)
}

func (p playlist) asList() []Track {
	return slices.Clone(p.list)
}

func (p *playlist) append(track Track) int {
	p.list = append(p.list, track)
	return len(p.list) - 1
}

func (p *playlist) move(oldIndex, newIndex int) error {
	if oldIndex < 0 || oldIndex >= len(p.list) {
		return ErrIndexOutOfRange
	}
	if newIndex < 0 || newIndex >= len(p.list) {
		return ErrIndexOutOfRange
	}

	track := p.list[oldIndex]
	p.list = slices.Delete(p.list, oldIndex, oldIndex+1)
	p.list = slices.Insert(p.list, newIndex, track)

	return nil
}
