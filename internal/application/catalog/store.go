package catalog

import (
	"strings"
	"sync"

	"github.com/bimakw/nft-market-sync/internal/domain/entities"
)

// Store holds the in-memory NFT and collection lists shown to clients.
// Writers go through Update functions; readers get copies.
type Store struct {
	mu          sync.RWMutex
	nfts        []entities.NFT
	collections []entities.Collection
	version     uint64
	onChange    []func(version uint64)

	// version at which each record was last merged on its own
	nftMerged map[string]uint64
	colMerged map[string]uint64
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		nfts:        make([]entities.NFT, 0),
		collections: make([]entities.Collection, 0),
		nftMerged:   make(map[string]uint64),
		colMerged:   make(map[string]uint64),
	}
}

// Snapshot returns a copy of the NFT list
func (s *Store) Snapshot() []entities.NFT {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]entities.NFT, len(s.nfts))
	copy(out, s.nfts)
	return out
}

// Collections returns a copy of the collection list
func (s *Store) Collections() []entities.Collection {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]entities.Collection, len(s.collections))
	copy(out, s.collections)
	return out
}

// Find returns the NFT identified by (collection, tokenID)
func (s *Store) Find(collection, tokenID string) (entities.NFT, bool) {
	key := entities.NFT{Collection: collection, TokenID: tokenID}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, n := range s.nfts {
		if n.SameToken(key) {
			return n, true
		}
	}
	return entities.NFT{}, false
}

// Version increments on every change
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// OnChange registers fn to be called after every update
func (s *Store) OnChange(fn func(version uint64)) {
	s.mu.Lock()
	s.onChange = append(s.onChange, fn)
	s.mu.Unlock()
}

// Update replaces the NFT list with fn applied to the current one.
// fn receives a copy and must not retain it.
func (s *Store) Update(fn func([]entities.NFT) []entities.NFT) {
	s.mu.Lock()
	cur := make([]entities.NFT, len(s.nfts))
	copy(cur, s.nfts)
	s.nfts = fn(cur)
	s.version++
	version, hooks := s.version, s.hooksLocked()
	s.mu.Unlock()

	notify(hooks, version)
}

// UpdateCollections replaces the collection list with fn applied to the current one
func (s *Store) UpdateCollections(fn func([]entities.Collection) []entities.Collection) {
	s.mu.Lock()
	cur := make([]entities.Collection, len(s.collections))
	copy(cur, s.collections)
	s.collections = fn(cur)
	s.version++
	version, hooks := s.version, s.hooksLocked()
	s.mu.Unlock()

	notify(hooks, version)
}

// MergeNFT reconciles a canonical record into the list
func (s *Store) MergeNFT(n entities.NFT) {
	s.Update(func(list []entities.NFT) []entities.NFT {
		s.nftMerged[nftIdentity(n)] = s.version + 1
		return MergeNFT(list, n)
	})
}

// MergeCollection reconciles a canonical collection into the list
func (s *Store) MergeCollection(c entities.Collection) {
	s.UpdateCollections(func(list []entities.Collection) []entities.Collection {
		s.colMerged[collectionIdentity(c)] = s.version + 1
		return MergeCollection(list, c)
	})
}

// MergeNFTs merges a list loaded while the store was at version since.
// Records merged on their own after since are newer and win.
func (s *Store) MergeNFTs(nfts []entities.NFT, since uint64) {
	s.Update(func(list []entities.NFT) []entities.NFT {
		for _, n := range nfts {
			if s.nftMerged[nftIdentity(n)] > since {
				continue
			}
			list = MergeNFT(list, n)
		}
		return list
	})
}

// MergeCollections merges a collection list loaded at version since
func (s *Store) MergeCollections(cols []entities.Collection, since uint64) {
	s.UpdateCollections(func(list []entities.Collection) []entities.Collection {
		for _, c := range cols {
			if s.colMerged[collectionIdentity(c)] > since {
				continue
			}
			list = MergeCollection(list, c)
		}
		return list
	})
}

// ReplaceNFTs swaps in a freshly fetched NFT list
func (s *Store) ReplaceNFTs(nfts []entities.NFT) {
	s.Update(func([]entities.NFT) []entities.NFT {
		out := make([]entities.NFT, len(nfts))
		copy(out, nfts)
		return out
	})
}

// ReplaceCollections swaps in a freshly fetched collection list
func (s *Store) ReplaceCollections(cols []entities.Collection) {
	s.UpdateCollections(func([]entities.Collection) []entities.Collection {
		out := make([]entities.Collection, len(cols))
		copy(out, cols)
		return out
	})
}

func (s *Store) hooksLocked() []func(uint64) {
	hooks := make([]func(uint64), len(s.onChange))
	copy(hooks, s.onChange)
	return hooks
}

func nftIdentity(n entities.NFT) string {
	if n.Collection != "" && n.TokenID != "" {
		k := n.Key()
		return k.Collection + "/" + k.TokenID
	}
	return "id:" + n.ID
}

func collectionIdentity(c entities.Collection) string {
	if c.ContractAddress != "" {
		return strings.ToLower(c.ContractAddress)
	}
	return "id:" + c.ID
}

func notify(hooks []func(uint64), version uint64) {
	for _, fn := range hooks {
		fn(version)
	}
}

// MergeNFT replaces the entry with the same identity as n, or appends n.
// Merging the same record twice yields the same list.
func MergeNFT(list []entities.NFT, n entities.NFT) []entities.NFT {
	for i := range list {
		if list[i].SameToken(n) {
			// Keep resolved metadata when the backend record does not carry it
			if n.NeedsMetadata() && !list[i].NeedsMetadata() {
				n.ApplyMetadata(entities.Metadata{
					Name:        list[i].Name,
					Description: list[i].Description,
					Image:       list[i].Image,
					Attributes:  list[i].Attributes,
				})
			}
			list[i] = n
			return list
		}
	}
	return append(list, n)
}

// MergeCollection replaces the entry with the same identity as c, or appends c
func MergeCollection(list []entities.Collection, c entities.Collection) []entities.Collection {
	for i := range list {
		if list[i].SameCollection(c) {
			if c.NeedsMetadata() && !list[i].NeedsMetadata() {
				c.Description = list[i].Description
				c.Image = list[i].Image
			}
			list[i] = c
			return list
		}
	}
	return append(list, c)
}
