package knowledge

// DefaultSnippets 返回内置的协议简介，供 DeFi 分析在没有外部知识库时引用。
func DefaultSnippets() []Snippet {
	return []Snippet{
		{
			Title:    "Aave",
			Content:  "Aave is a non-custodial lending market. Suppliers earn variable yield, borrowers post over-collateralised positions that are liquidated when the health factor drops below 1.",
			Link:     "https://app.aave.com",
			Keywords: []string{"aave", "lend", "lending", "borrow", "supply"},
		},
		{
			Title:    "Uniswap",
			Content:  "Uniswap is an AMM DEX. v3 pools concentrate liquidity in price ranges, so LPs earn more fees but face higher impermanent loss when the price leaves the range.",
			Link:     "https://app.uniswap.org",
			Keywords: []string{"uniswap", "swap", "liquidity", "lp", "dex"},
		},
		{
			Title:    "Lido",
			Content:  "Lido issues stETH for staked ETH. Rewards accrue daily through rebasing and stETH can be traded or used as collateral while the ETH stays staked.",
			Link:     "https://stake.lido.fi",
			Keywords: []string{"lido", "stake", "staking", "steth"},
		},
		{
			Title:    "Curve",
			Content:  "Curve specialises in stablecoin and pegged-asset pools with low slippage. CRV gauge rewards boost LP yield for veCRV lockers.",
			Link:     "https://curve.fi",
			Keywords: []string{"curve", "stablecoin", "usdc", "usdt", "dai"},
		},
		{
			Title:    "Sonic Gateway",
			Content:  "The Sonic Gateway moves assets between Ethereum and Sonic. Deposits settle after the next heartbeat and withdrawals carry a fail-safe delay.",
			Link:     "https://gateway.soniclabs.com",
			Keywords: []string{"sonic", "bridge", "gateway"},
			Tags:     []string{"bridge"},
		},
	}
}
