package ethereum

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

var (
	// ErrUnknownEvent is returned for logs whose first topic is not in the ABI
	ErrUnknownEvent = errors.New("unknown event")

	errNoEventSignature = errors.New("no event signature")
)

// CollectionCreatedEvent is emitted by the factory when a collection is deployed
type CollectionCreatedEvent struct {
	Owner       common.Address
	Collection  common.Address
	Name        string
	Symbol      string
	MetadataURI string
	Raw         types.Log
}

// NFTMintedEvent is emitted by a collection on mint
type NFTMintedEvent struct {
	Owner    common.Address
	TokenId  *big.Int
	TokenURI string
	Royalty  *big.Int
	Raw      types.Log
}

// NFTPriceSetEvent carries the new fixed price in base units
type NFTPriceSetEvent struct {
	TokenId *big.Int
	Price   *big.Int
	Raw     types.Log
}

// AuctionStartedEvent carries the start bid in base units and the unix end time
type AuctionStartedEvent struct {
	TokenId  *big.Int
	StartBid *big.Int
	EndTime  *big.Int
	Raw      types.Log
}

// NewBidPlacedEvent is emitted for every accepted bid
type NewBidPlacedEvent struct {
	TokenId *big.Int
	Bidder  common.Address
	Amount  *big.Int
	Raw     types.Log
}

// AuctionEndedEvent is emitted when an auction settles
type AuctionEndedEvent struct {
	TokenId *big.Int
	Winner  common.Address
	Amount  *big.Int
	Raw     types.Log
}

// NFTSoldEvent is emitted on a fixed price purchase
type NFTSoldEvent struct {
	TokenId *big.Int
	Seller  common.Address
	Buyer   common.Address
	Price   *big.Int
	Raw     types.Log
}

// EventName returns the ABI event name of a log, or ErrUnknownEvent
func EventName(contractABI *abi.ABI, log types.Log) (string, error) {
	if len(log.Topics) == 0 {
		return "", errNoEventSignature
	}
	event, err := contractABI.EventByID(log.Topics[0])
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrUnknownEvent, log.Topics[0].Hex())
	}
	return event.Name, nil
}

// UnpackLog decodes both indexed and non-indexed fields of a log into out
func UnpackLog(contractABI *abi.ABI, out interface{}, event string, log types.Log) error {
	ev, ok := contractABI.Events[event]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownEvent, event)
	}
	if len(log.Topics) == 0 {
		return errNoEventSignature
	}
	if log.Topics[0] != ev.ID {
		return fmt.Errorf("not a %s event", event)
	}

	if len(log.Data) > 0 {
		if err := contractABI.UnpackIntoInterface(out, event, log.Data); err != nil {
			return fmt.Errorf("failed to unpack %s data: %w", event, err)
		}
	}

	var indexed abi.Arguments
	for _, arg := range ev.Inputs {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	if len(log.Topics)-1 != len(indexed) {
		return fmt.Errorf("invalid number of topics: expected %d, got %d", len(indexed)+1, len(log.Topics))
	}

	if err := abi.ParseTopics(out, indexed, log.Topics[1:]); err != nil {
		return fmt.Errorf("failed to parse %s topics: %w", event, err)
	}
	return nil
}

var eventFactories = map[string]func(types.Log) interface{}{
	EventCollectionCreated: func(l types.Log) interface{} { return &CollectionCreatedEvent{Raw: l} },
	EventNFTMinted:         func(l types.Log) interface{} { return &NFTMintedEvent{Raw: l} },
	EventNFTPriceSet:       func(l types.Log) interface{} { return &NFTPriceSetEvent{Raw: l} },
	EventAuctionStarted:    func(l types.Log) interface{} { return &AuctionStartedEvent{Raw: l} },
	EventNewBidPlaced:      func(l types.Log) interface{} { return &NewBidPlacedEvent{Raw: l} },
	EventAuctionEnded:      func(l types.Log) interface{} { return &AuctionEndedEvent{Raw: l} },
	EventNFTSold:           func(l types.Log) interface{} { return &NFTSoldEvent{Raw: l} },
}

// ParseEvent decodes a marketplace log into its typed event (a pointer to one of the *Event structs)
func ParseEvent(contractABI *abi.ABI, log types.Log) (interface{}, error) {
	name, err := EventName(contractABI, log)
	if err != nil {
		return nil, err
	}

	factory, ok := eventFactories[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEvent, name)
	}

	out := factory(log)
	if err := UnpackLog(contractABI, out, name, log); err != nil {
		return nil, err
	}
	return out, nil
}

// ParseLogs decodes multiple logs.
// Returns the decoded events and a list of failed log indices
func ParseLogs(contractABI *abi.ABI, logs []types.Log) ([]interface{}, []int) {
	events := make([]interface{}, 0, len(logs))
	failedIndices := make([]int, 0)

	for i, log := range logs {
		if log.Removed {
			failedIndices = append(failedIndices, i)
			continue
		}

		ev, err := ParseEvent(contractABI, log)
		if err != nil {
			failedIndices = append(failedIndices, i)
			continue
		}

		events = append(events, ev)
	}

	return events, failedIndices
}

// EventIDs returns the topic ids of the named events
func EventIDs(contractABI *abi.ABI, names ...string) []common.Hash {
	ids := make([]common.Hash, 0, len(names))
	for _, name := range names {
		if ev, ok := contractABI.Events[name]; ok {
			ids = append(ids, ev.ID)
		}
	}
	return ids
}

// RawLog returns the log a decoded event was built from
func RawLog(event interface{}) types.Log {
	switch ev := event.(type) {
	case *CollectionCreatedEvent:
		return ev.Raw
	case *NFTMintedEvent:
		return ev.Raw
	case *NFTPriceSetEvent:
		return ev.Raw
	case *AuctionStartedEvent:
		return ev.Raw
	case *NewBidPlacedEvent:
		return ev.Raw
	case *AuctionEndedEvent:
		return ev.Raw
	case *NFTSoldEvent:
		return ev.Raw
	default:
		return types.Log{}
	}
}
