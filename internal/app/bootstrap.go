package app

// fallbackWhaleSeeds is the hardcoded bootstrap list used when the
// leaderboard fetch fails at startup. Addresses are well known high volume
// Polymarket proxy wallets; stats fill in once the store sees their trades.
var fallbackWhaleSeeds = []SeedEntry{
	{Address: "0x1d0034ad1df25b9c9f56a6fb687c1fdd1b02c2b6", Name: "Domer"},
	{Address: "0x9d84ce0306f8551e02efef1680475fc0f1dc1344", Name: "Fredi9999"},
	{Address: "0x7fb7ad0d194a5a2f0a3ec9132b2e174f8a33b0ce", Name: "Theo4"},
	{Address: "0x3355b9bb864fa3a2c793cf172e3e6ffe209c06c2", Name: "RepTrump"},
	{Address: "0x8f9b51b3c8a7b96ba50f2da2231e5be0b1b52ef0", Name: "Walletmobile"},
	{Address: "0xd8e05c8f6cf40b3bfc4e16b28b5b42f9e1b0cdea", Name: "zxgngl"},
	{Address: "0x04c1c21a1d52b06b745d6b4003dbc466c17a1c09", Name: "PrincessCaro"},
	{Address: "0x14af9884f6f56f84ba3b83bd16ab5c3ba1e1d16c", Name: "JustKen"},
	{Address: "0x56687bf447db6ffa42ffe2204a05edaa20f55839", Name: "CarlosMatos"},
	{Address: "0xe9c1b6f6fb5e5d62fd6f9c394f4ce1cd42eab70c", Name: "GCottrell78"},
}
