package gigsync

import "sort"

// PresenceSet is the set of user ids currently considered online. Join and
// leave events carry no ordering guarantee, so the set only reflects the last
// event applied for each user.
type PresenceSet struct {
	online map[string]struct{}
}

func NewPresenceSet() *PresenceSet {
	return &PresenceSet{online: make(map[string]struct{})}
}

// Join marks userID online. It reports whether membership changed.
func (p *PresenceSet) Join(userID string) bool {
	if _, ok := p.online[userID]; ok {
		return false
	}
	p.online[userID] = struct{}{}
	return true
}

// Leave marks userID offline. It reports whether membership changed.
func (p *PresenceSet) Leave(userID string) bool {
	if _, ok := p.online[userID]; !ok {
		return false
	}
	delete(p.online, userID)
	return true
}

// Replace swaps the whole set for a server snapshot.
func (p *PresenceSet) Replace(userIDs []string) {
	p.online = make(map[string]struct{}, len(userIDs))
	for _, id := range userIDs {
		if id != "" {
			p.online[id] = struct{}{}
		}
	}
}

func (p *PresenceSet) IsOnline(userID string) bool {
	_, ok := p.online[userID]
	return ok
}

// Online returns the online user ids sorted.
func (p *PresenceSet) Online() []string {
	ids := make([]string, 0, len(p.online))
	for id := range p.online {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (p *PresenceSet) Len() int {
	return len(p.online)
}
