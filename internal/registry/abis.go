package registry

// ABI fragments for the contracts the integration layer and wallet talk to.
const (
	ERC20ABI = `[
		{"name":"balanceOf","type":"function","stateMutability":"view","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
		{"name":"decimals","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]},
		{"name":"allowance","type":"function","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
		{"name":"approve","type":"function","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
		{"name":"transfer","type":"function","stateMutability":"nonpayable","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}
	]`

	LendingPoolABI = `[
		{"name":"deposit","type":"function","stateMutability":"nonpayable","inputs":[{"name":"token","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[]},
		{"name":"withdraw","type":"function","stateMutability":"nonpayable","inputs":[{"name":"token","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[]},
		{"name":"borrow","type":"function","stateMutability":"nonpayable","inputs":[{"name":"token","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[]},
		{"name":"repay","type":"function","stateMutability":"nonpayable","inputs":[{"name":"token","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[]},
		{"name":"listToken","type":"function","stateMutability":"nonpayable","inputs":[{"name":"token","type":"address"},{"name":"price","type":"uint256"}],"outputs":[]},
		{"name":"setTokenPrice","type":"function","stateMutability":"nonpayable","inputs":[{"name":"token","type":"address"},{"name":"price","type":"uint256"}],"outputs":[]},
		{"name":"getTokenPrice","type":"function","stateMutability":"view","inputs":[{"name":"token","type":"address"}],"outputs":[{"name":"","type":"uint256"}]}
	]`

	StakingPoolABI = `[
		{"name":"stake","type":"function","stateMutability":"nonpayable","inputs":[{"name":"poolId","type":"uint256"},{"name":"amount","type":"uint256"}],"outputs":[]},
		{"name":"unstake","type":"function","stateMutability":"nonpayable","inputs":[{"name":"poolId","type":"uint256"},{"name":"amount","type":"uint256"}],"outputs":[]},
		{"name":"claimRewards","type":"function","stateMutability":"nonpayable","inputs":[{"name":"poolId","type":"uint256"}],"outputs":[]},
		{"name":"emergencyWithdraw","type":"function","stateMutability":"nonpayable","inputs":[{"name":"poolId","type":"uint256"}],"outputs":[]},
		{"name":"createPool","type":"function","stateMutability":"nonpayable","inputs":[{"name":"stakingToken","type":"address"},{"name":"rewardToken","type":"address"},{"name":"rewardRate","type":"uint256"}],"outputs":[]},
		{"name":"poolLength","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
		{"name":"getPoolInfo","type":"function","stateMutability":"view","inputs":[{"name":"poolId","type":"uint256"}],"outputs":[{"name":"stakingToken","type":"address"},{"name":"rewardToken","type":"address"},{"name":"rewardRate","type":"uint256"},{"name":"totalStaked","type":"uint256"},{"name":"active","type":"bool"}]},
		{"name":"getUserInfo","type":"function","stateMutability":"view","inputs":[{"name":"poolId","type":"uint256"},{"name":"user","type":"address"}],"outputs":[{"name":"amount","type":"uint256"},{"name":"pendingRewards","type":"uint256"}]}
	]`

	ENSRegistryABI = `[
		{"name":"resolver","type":"function","stateMutability":"view","inputs":[{"name":"node","type":"bytes32"}],"outputs":[{"name":"","type":"address"}]}
	]`

	ENSResolverABI = `[
		{"name":"addr","type":"function","stateMutability":"view","inputs":[{"name":"node","type":"bytes32"}],"outputs":[{"name":"","type":"address"}]}
	]`
)

// ENSRegistryAddress is the ENS registry deployment shared by mainnet and Sepolia.
const ENSRegistryAddress = "0x00000000000C2E074eC69A0dFb2997BA6C7d2e1e"
