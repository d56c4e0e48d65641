package clients

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// lotteryABI is the slice of the deployed Lottery contract surface the bot
// uses. Upkeep and VRF plumbing methods are intentionally omitted.
const lotteryABI = `[
	{
		"inputs": [],
		"name": "marketId",
		"outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [{"internalType": "uint256", "name": "marketId_", "type": "uint256"}],
		"name": "getRoundAmount",
		"outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [{"internalType": "uint256", "name": "marketId_", "type": "uint256"}],
		"name": "getRoundParticipants",
		"outputs": [{"internalType": "address[]", "name": "", "type": "address[]"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [{"internalType": "uint256", "name": "marketId_", "type": "uint256"}],
		"name": "getRoundWinner",
		"outputs": [{"internalType": "address", "name": "", "type": "address"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
		"name": "marketIdToExpiration",
		"outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [],
		"name": "filterPendingWinningEntriesForUser",
		"outputs": [{"internalType": "uint256[]", "name": "LotteryIds", "type": "uint256[]"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [],
		"name": "enterMarket",
		"outputs": [],
		"stateMutability": "payable",
		"type": "function"
	},
	{
		"inputs": [{"internalType": "uint256", "name": "marketId_", "type": "uint256"}],
		"name": "claimWinnings",
		"outputs": [],
		"stateMutability": "payable",
		"type": "function"
	},
	{
		"anonymous": false,
		"inputs": [
			{"indexed": true, "internalType": "uint256", "name": "MarketId", "type": "uint256"},
			{"indexed": true, "internalType": "address", "name": "User", "type": "address"},
			{"indexed": false, "internalType": "uint256", "name": "Amount", "type": "uint256"}
		],
		"name": "EnteredMarket",
		"type": "event"
	},
	{
		"anonymous": false,
		"inputs": [
			{"indexed": true, "internalType": "uint256", "name": "MarketId", "type": "uint256"},
			{"indexed": true, "internalType": "address", "name": "User", "type": "address"},
			{"indexed": false, "internalType": "uint256", "name": "Amount", "type": "uint256"}
		],
		"name": "ClaimedWinnings",
		"type": "event"
	}
]`

// ContractABI returns the parsed lottery ABI. Exposed for test fakes that
// need to encode call results the way the contract would.
func ContractABI() abi.ABI {
	return mustParseABI(lotteryABI)
}

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic("invalid lottery ABI: " + err.Error())
	}
	return parsed
}
