// Command checkbalance prints the USDC balance of the trading wallet, or of
// an address passed as the first argument.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/0xHamad/polymarket-copy-bot/api"
	"github.com/0xHamad/polymarket-copy-bot/config"
)

func main() {
	godotenv.Load()

	cfg, err := config.Load(os.Getenv("COPYBOT_CONFIG"))
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	var address string
	if len(os.Args) > 1 {
		address = os.Args[1]
	} else {
		auth, err := api.NewAuth()
		if err != nil {
			log.Fatalf("no address argument and no signing key: %v", err)
		}
		address = auth.GetAddress().Hex()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	dataClient := api.NewDataClient(os.Getenv("DATA_API_URL"), cfg.Chain.RPCEndpoint)
	balance, err := dataClient.GetOnChainUSDCBalance(ctx, address)
	if err != nil {
		log.Fatalf("balance query failed: %v", err)
	}

	fmt.Printf("Wallet:  %s\n", address)
	fmt.Printf("Balance: $%.2f USDC\n", balance)
}
