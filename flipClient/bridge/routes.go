package bridge

import (
	"github.com/Longfei-Zhao/Flip-renjs-v3/flipClient/asset"
)

const withdrawMethod = "withdraw"

// route is one supported (asset, source, destination) combination
type route struct {
	direction Direction
	from      string
	fromStyle EndpointStyle
	to        string
	toStyle   EndpointStyle
	method    string // contract method on the ledger side
}

// routesFor derives the routes of an asset from its variant data. Contract
// native assets never route through the bridge.
func routesFor(a asset.Asset) []route {
	if !a.Bridged() {
		return nil
	}

	var fromStyle EndpointStyle
	switch a.SourceStyle {
	case asset.SourceAddress:
		fromStyle = StyleDepositAddress
	case asset.SourceCall:
		fromStyle = StyleAccount
	default:
		return nil
	}

	return []route{
		{
			direction: DirectionMint,
			from:      a.Chain,
			fromStyle: fromStyle,
			to:        asset.LedgerChain,
			toStyle:   StyleContract,
			method:    a.DepositMethod,
		},
		{
			direction: DirectionBurn,
			from:      asset.LedgerChain,
			fromStyle: StyleContract,
			to:        a.Chain,
			toStyle:   StyleAddress,
			method:    withdrawMethod,
		},
	}
}

func matchRoute(a asset.Asset, src, dst Endpoint) (route, bool) {
	for _, r := range routesFor(a) {
		if r.from != src.Chain || r.fromStyle != src.Style || r.to != dst.Chain || r.toStyle != dst.Style {
			continue
		}
		contract := dst
		if r.direction == DirectionBurn {
			contract = src
		}
		if contract.Method != r.method {
			continue
		}
		return r, true
	}
	return route{}, false
}
