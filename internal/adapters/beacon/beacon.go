package beacon

import (
	"context"
	"encoding/hex"
	"errors"
	"math/big"
	"net/http"
	"strings"
	"time"

	v1 "github.com/attestantio/go-eth2-client/api/v1"
	"github.com/ethereum/go-ethereum/params"
	"github.com/rs/zerolog"

	"github.com/attestantio/go-eth2-client/api"
	_http "github.com/attestantio/go-eth2-client/http"
	"github.com/attestantio/go-eth2-client/spec/phase0"

	"github.com/dappnode/staking-pool-manager/internal/application/ports"
)

// beaconOracle implements ports.BalanceOraclePort against a beacon node. It
// scopes every query to the pool's own funded validators, whose pubkeys come
// from the key source.
type beaconOracle struct {
	client *_http.Service
	keys   ports.FundedKeySource
}

var exitedStates = []v1.ValidatorState{
	v1.ValidatorStateExitedUnslashed,
	v1.ValidatorStateExitedSlashed,
	v1.ValidatorStateWithdrawalPossible,
	v1.ValidatorStateWithdrawalDone,
}

func NewBeaconOracle(endpoint string, keys ports.FundedKeySource) (ports.BalanceOraclePort, error) {
	zerolog.SetGlobalLevel(zerolog.WarnLevel)

	customHttpClient := &http.Client{
		Timeout: 20 * time.Second,
	}

	client, err := _http.New(context.Background(),
		_http.WithAddress(endpoint),
		_http.WithHTTPClient(customHttpClient),
		_http.WithTimeout(20*time.Second), // attestant API overrides the http.Client timeout
	)
	if err != nil {
		return nil, err
	}

	return &beaconOracle{client: client.(*_http.Service), keys: keys}, nil
}

// ReportedValidatorCount returns how many of the pool's funded validators are
// visible in the justified state, whatever their lifecycle phase. A funded
// slot not yet visible is still in transit to the staking layer.
func (b *beaconOracle) ReportedValidatorCount(ctx context.Context) (uint64, error) {
	pubkeys, err := b.fundedPubkeys(ctx)
	if err != nil {
		return 0, err
	}
	if len(pubkeys) == 0 {
		return 0, nil
	}
	validators, err := b.client.Validators(ctx, &api.ValidatorsOpts{
		State:   "justified",
		PubKeys: pubkeys,
	})
	if err != nil {
		return 0, err
	}
	return uint64(len(validators.Data)), nil
}

// ReportedBalanceSum returns the aggregate balance of the pool's visible
// validators in wei.
func (b *beaconOracle) ReportedBalanceSum(ctx context.Context) (*big.Int, error) {
	pubkeys, err := b.fundedPubkeys(ctx)
	if err != nil {
		return nil, err
	}
	sum := new(big.Int)
	if len(pubkeys) == 0 {
		return sum, nil
	}
	validators, err := b.client.Validators(ctx, &api.ValidatorsOpts{
		State:   "justified",
		PubKeys: pubkeys,
	})
	if err != nil {
		return nil, err
	}
	var gwei uint64
	for _, v := range validators.Data {
		gwei += uint64(v.Balance)
	}
	sum.SetUint64(gwei)
	return sum.Mul(sum, big.NewInt(params.GWei)), nil
}

// ReportedStoppedCounts returns, per operator, how many of its funded
// validators have exited the staking layer.
func (b *beaconOracle) ReportedStoppedCounts(ctx context.Context) (map[string]uint64, error) {
	byOperator, err := b.keys.FundedKeys(ctx)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]uint64, len(byOperator))
	for name, hexKeys := range byOperator {
		if len(hexKeys) == 0 {
			counts[name] = 0
			continue
		}
		pubkeys, err := toBLSPubkeys(hexKeys)
		if err != nil {
			return nil, err
		}
		validators, err := b.client.Validators(ctx, &api.ValidatorsOpts{
			State:           "justified",
			PubKeys:         pubkeys,
			ValidatorStates: exitedStates,
		})
		if err != nil {
			return nil, err
		}
		counts[name] = uint64(len(validators.Data))
	}
	return counts, nil
}

func (b *beaconOracle) fundedPubkeys(ctx context.Context) ([]phase0.BLSPubKey, error) {
	byOperator, err := b.keys.FundedKeys(ctx)
	if err != nil {
		return nil, err
	}
	var all []string
	for _, hexKeys := range byOperator {
		all = append(all, hexKeys...)
	}
	return toBLSPubkeys(all)
}

func toBLSPubkeys(hexKeys []string) ([]phase0.BLSPubKey, error) {
	var pubkeys []phase0.BLSPubKey
	for _, hexPubkey := range hexKeys {
		hexPubkey = strings.TrimPrefix(hexPubkey, "0x")
		bytes, err := hex.DecodeString(hexPubkey)
		if err != nil {
			return nil, errors.New("failed to decode pubkey: " + hexPubkey)
		}
		if len(bytes) != 48 {
			return nil, errors.New("invalid pubkey length for: " + hexPubkey)
		}
		var blsPubkey phase0.BLSPubKey
		copy(blsPubkey[:], bytes)
		pubkeys = append(pubkeys, blsPubkey)
	}
	return pubkeys, nil
}
