package services

import (
	"context"
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/bimakw/nft-market-sync/internal/domain/entities"
	"github.com/bimakw/nft-market-sync/internal/infrastructure/ethereum"
)

// EIP-1193 code for a request the user declined
const userRejectedCode = 4001

const revertPrefix = "execution reverted"

// ClassifyTxError maps a wallet, node or contract failure to a TxError.
// Checks run in a fixed order: explicit rejection, revert reason, provider
// message, fallback.
func ClassifyTxError(err error) *entities.TxError {
	if err == nil {
		return nil
	}

	var txErr *entities.TxError
	if errors.As(err, &txErr) {
		return txErr
	}

	if isUserRejection(err) {
		return &entities.TxError{Kind: entities.TxRejected, Err: err}
	}

	if reason, ok := revertReason(err); ok {
		return &entities.TxError{Kind: entities.TxReverted, Reason: reason, Err: err}
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "insufficient funds"):
		return &entities.TxError{Kind: entities.TxInsufficientFunds, Err: err}
	case errors.Is(err, context.DeadlineExceeded):
		return &entities.TxError{Kind: entities.TxTimeout, Err: err}
	default:
		return &entities.TxError{Kind: entities.TxUnknown, Err: err}
	}
}

func isUserRejection(err error) bool {
	if errors.Is(err, ethereum.ErrUserRejected) {
		return true
	}

	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) && rpcErr.ErrorCode() == userRejectedCode {
		return true
	}

	msg := err.Error()
	lower := strings.ToLower(msg)
	return strings.Contains(msg, "ACTION_REJECTED") ||
		strings.Contains(lower, "user rejected") ||
		strings.Contains(lower, "user denied")
}

// revertReason extracts the reason of a contract revert. The reason is empty
// when the contract reverted without one.
func revertReason(err error) (string, bool) {
	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		if s, ok := dataErr.ErrorData().(string); ok {
			if data, decErr := hexutil.Decode(s); decErr == nil {
				if reason, unpackErr := abi.UnpackRevert(data); unpackErr == nil {
					return reason, true
				}
			}
		}
	}

	msg := err.Error()
	idx := strings.Index(msg, revertPrefix)
	if idx < 0 {
		return "", false
	}

	reason := strings.TrimSpace(strings.TrimPrefix(msg[idx+len(revertPrefix):], ":"))
	return reason, true
}

// txMessage is the user-facing text for a classified failure
func txMessage(e *entities.TxError) string {
	switch e.Kind {
	case entities.TxReverted:
		if e.Reason != "" {
			return "Transaction reverted: " + e.Reason
		}
		return "Transaction reverted by the contract"
	case entities.TxInsufficientFunds:
		return "Insufficient funds to pay for this transaction"
	case entities.TxTimeout:
		return "Transaction not confirmed yet; it may still complete"
	default:
		if e.Err != nil {
			return "Transaction failed: " + e.Err.Error()
		}
		return "Transaction failed"
	}
}
