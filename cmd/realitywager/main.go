// Command realitywager is the CLI surface for the Reality Wager protocol:
// key generation, the funding handshake, the winner's claim, and a plain
// refund/payment command.
package main

import (
	"context"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"

	"github.com/oraclewager/realitywager/internal/claim"
	"github.com/oraclewager/realitywager/internal/config"
	"github.com/oraclewager/realitywager/internal/contract"
	"github.com/oraclewager/realitywager/internal/keys"
	"github.com/oraclewager/realitywager/internal/oracle"
	"github.com/oraclewager/realitywager/internal/refund"
	"github.com/oraclewager/realitywager/internal/relay"
	"github.com/oraclewager/realitywager/internal/setup"
	"github.com/oraclewager/realitywager/internal/utxo"
	"github.com/oraclewager/realitywager/pkg/helpers"
	"github.com/oraclewager/realitywager/pkg/logging"
)

var version = "0.1.0-dev"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	if os.Args[1] == "--version" {
		fmt.Println("realitywager", version)
		return
	}

	var err error
	switch os.Args[1] {
	case "makekeys":
		err = runMakeKeys(os.Args[2:])
	case "setup":
		err = runSetup(os.Args[2:])
	case "claim":
		err = runClaim(os.Args[2:])
	case "pay":
		err = runPay(os.Args[2:])
	case "-h", "--help", "help":
		usage()
		return
	default:
		usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "realitywager:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: realitywager <command> [flags] [args]

commands:
  makekeys                                           generate/display key material
  setup <factId> <yesPub> <yesStake> <noPub> <noStake> [<halfSignedTx>]
  claim <factId> <yesPub> <noPub>
  pay <address> <amount-in-btc>

common flags:
  --testnet                     use testnet addresses and endpoints
  --no-pushtx                    do not broadcast; print the transaction hex
  --seed <string>                 override the persisted seed
  --inputs <addr:txid:vout:value> UTXO override (repeatable)
  --fee <sats>                    fee in satoshis
  --destination-address <addr>    claim/pay destination
  --ecc-voodoo                    select EccSum mode (default is IfElse)
  --config <path>                 load a YAML config file
  --log-level <level>             debug|info|warn|error
  --quiet                         suppress informational logging`)
}

// stringList implements flag.Value for repeatable --inputs flags.
type stringList []string

func (s *stringList) String() string { return fmt.Sprint([]string(*s)) }
func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

// commonFlags are shared across setup/claim/pay.
type commonFlags struct {
	testnet    *bool
	noPushTx   *bool
	seed       *string
	inputs     stringList
	fee        *int64
	dest       *string
	eccVoodoo  *bool
	configPath *string
	logLevel   *string
	quiet      *bool
}

func bindCommon(fs *flag.FlagSet) *commonFlags {
	c := &commonFlags{
		testnet:    fs.Bool("testnet", false, "use testnet"),
		noPushTx:   fs.Bool("no-pushtx", false, "do not broadcast"),
		seed:       fs.String("seed", "", "seed override"),
		fee:        fs.Int64("fee", 0, "fee in satoshis, 0 uses the config default"),
		dest:       fs.String("destination-address", "", "destination address"),
		eccVoodoo:  fs.Bool("ecc-voodoo", false, "select EccSum mode"),
		configPath: fs.String("config", "", "config file path"),
		logLevel:   fs.String("log-level", "info", "log level"),
		quiet:      fs.Bool("quiet", false, "suppress informational logging"),
	}
	fs.Var(&c.inputs, "inputs", "UTXO override address:txid:vout:value (repeatable)")
	return c
}

func setupLogging(c *commonFlags) *logging.Logger {
	level := *c.logLevel
	if *c.quiet {
		level = "error"
	}
	log := logging.New(&logging.Config{Level: level, TimeFormat: time.TimeOnly})
	logging.SetDefault(log)
	return log
}

func loadConfig(c *commonFlags) (*config.Config, error) {
	path := *c.configPath
	if path == "" {
		var err error
		path, err = config.DefaultPath()
		if err != nil {
			return nil, err
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	cfg.Testnet = *c.testnet || cfg.Testnet
	cfg.NoBroadcast = *c.noPushTx || cfg.NoBroadcast
	if *c.fee > 0 {
		cfg.DefaultFee = *c.fee
	}
	return cfg, nil
}

func mode(c *commonFlags) contract.Mode {
	if *c.eccVoodoo {
		return contract.EccSum
	}
	return contract.IfElse
}

func utxoSource(cfg *config.Config, c *commonFlags) utxo.Source {
	if len(c.inputs) > 0 {
		src, err := utxo.NewOverrideSource(c.inputs)
		if err == nil {
			return src
		}
	}
	if cfg.Testnet {
		return utxo.NewNetworkSource(cfg.ExplorerTestnetURL)
	}
	return utxo.NewNetworkSource(cfg.ExplorerMainnetURL)
}

func relayChain(cfg *config.Config) *relay.Chain {
	if cfg.Testnet {
		return relay.DefaultChain(true)
	}
	return &relay.Chain{
		Endpoints: []relay.Endpoint{
			{Name: "primary", URL: cfg.RelayPrimaryURL},
			{Name: "alternate", URL: cfg.RelayAlternateURL},
		},
	}
}

func localPriv(c *commonFlags, log *logging.Logger) (*btcec.PrivateKey, error) {
	path, err := keys.DefaultSeedPath()
	if err != nil {
		return nil, err
	}
	seed, err := keys.EnsureSeed(*c.seed, path, true)
	if err != nil {
		return nil, err
	}
	return keys.PrivateKeyFromSeed(seed), nil
}

func runMakeKeys(args []string) error {
	fs := flag.NewFlagSet("makekeys", flag.ExitOnError)
	c := bindCommon(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	log := setupLogging(c)

	path, err := keys.DefaultSeedPath()
	if err != nil {
		return err
	}
	seed, err := keys.EnsureSeed(*c.seed, path, true)
	if err != nil {
		return err
	}
	priv := keys.PrivateKeyFromSeed(seed)
	pub := keys.PublicKeyUncompressed(priv)

	mainnetAddr, err := keys.Address(pub, false)
	if err != nil {
		return err
	}
	testnetAddr, err := keys.Address(pub, true)
	if err != nil {
		return err
	}

	log.Infof("seed: %s", seed)
	fmt.Printf("private key: %s\n", hex.EncodeToString(priv.Serialize()))
	fmt.Printf("public key:  %s\n", hex.EncodeToString(pub))
	fmt.Printf("mainnet address: %s\n", mainnetAddr)
	fmt.Printf("testnet address: %s\n", testnetAddr)
	return nil
}

func runSetup(args []string) error {
	fs := flag.NewFlagSet("setup", flag.ExitOnError)
	c := bindCommon(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	positional := fs.Args()
	if len(positional) < 5 {
		return fmt.Errorf("setup: want <factId> <yesPub> <yesStake> <noPub> <noStake> [<halfSignedTx>]")
	}

	log := setupLogging(c)
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	factID, err := oracle.FactIDFromString(positional[0])
	if err != nil {
		return err
	}
	yesPub, err := hex.DecodeString(positional[1])
	if err != nil {
		return fmt.Errorf("setup: invalid yesPub: %w", err)
	}
	yesStake, err := strconv.ParseInt(positional[2], 10, 64)
	if err != nil {
		return fmt.Errorf("setup: invalid yesStake: %w", err)
	}
	noPub, err := hex.DecodeString(positional[3])
	if err != nil {
		return fmt.Errorf("setup: invalid noPub: %w", err)
	}
	noStake, err := strconv.ParseInt(positional[4], 10, 64)
	if err != nil {
		return fmt.Errorf("setup: invalid noStake: %w", err)
	}

	var existingTx []byte
	if len(positional) > 5 {
		existingTx, err = hex.DecodeString(positional[5])
		if err != nil {
			return fmt.Errorf("setup: invalid halfSignedTx: %w", err)
		}
	}

	priv, err := localPriv(c, log)
	if err != nil {
		return err
	}

	result, err := setup.Run(context.Background(), setup.Params{
		Keys: setup.ContractKeys{
			YesWinnerPub: yesPub,
			YesStake:     yesStake,
			NoWinnerPub:  noPub,
			NoStake:      noStake,
			FactID:       factID,
			Mode:         mode(c),
		},
		LocalPriv:   priv,
		Oracle:      oracle.NewClient(cfg.OracleBaseURL),
		UTXOSource:  utxoSource(cfg, c),
		ExistingTx:  existingTx,
		MinFee:      cfg.MinFeeMargin,
		MaxFee:      cfg.MaxFeeMargin,
		Testnet:     cfg.Testnet,
		NoBroadcast: cfg.NoBroadcast,
		Relay:       relayChain(cfg),
	})
	if err != nil {
		return err
	}

	if result.FundingNeeded != nil {
		fmt.Printf("awaiting funding: %s side must send %d satoshis to %s\n",
			result.FundingNeeded.Role, result.FundingNeeded.Stake, result.FundingNeeded.Address)
		return nil
	}

	log.Infof("p2sh address: %s", result.P2SHAddress)
	fmt.Printf("signatures: %d/%d\n", result.SignaturesDone, result.SignaturesNeeded)
	if result.Broadcast != nil && result.Broadcast.Broadcast {
		fmt.Printf("broadcast via %s: %s\n", result.Broadcast.Via, result.Broadcast.TxID)
	} else {
		fmt.Printf("transaction hex: %s\n", result.RawHex)
	}
	return nil
}

func runClaim(args []string) error {
	fs := flag.NewFlagSet("claim", flag.ExitOnError)
	c := bindCommon(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	positional := fs.Args()
	if len(positional) < 3 {
		return fmt.Errorf("claim: want <factId> <yesPub> <noPub>")
	}

	log := setupLogging(c)
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	factID, err := oracle.FactIDFromString(positional[0])
	if err != nil {
		return err
	}
	yesPub, err := hex.DecodeString(positional[1])
	if err != nil {
		return fmt.Errorf("claim: invalid yesPub: %w", err)
	}
	noPub, err := hex.DecodeString(positional[2])
	if err != nil {
		return fmt.Errorf("claim: invalid noPub: %w", err)
	}

	priv, err := localPriv(c, log)
	if err != nil {
		return err
	}

	fee := cfg.DefaultFee
	if *c.fee > 0 {
		fee = *c.fee
	}

	result, err := claim.Run(context.Background(), claim.Params{
		FactID:       factID,
		YesWinnerPub: yesPub,
		NoWinnerPub:  noPub,
		LocalPriv:    priv,
		Fee:          fee,
		Destination:  *c.dest,
		Mode:         mode(c),
		Oracle:       oracle.NewClient(cfg.OracleBaseURL),
		UTXOSource:   utxoSource(cfg, c),
		Testnet:      cfg.Testnet,
		NoBroadcast:  cfg.NoBroadcast,
		Relay:        relayChain(cfg),
	})
	if errors.Is(err, claim.ErrUndecided) {
		fmt.Println(err)
		return nil
	}
	if err != nil {
		return err
	}

	log.Infof("p2sh address: %s", result.P2SHAddress)
	if result.Broadcast != nil && result.Broadcast.Broadcast {
		fmt.Printf("broadcast via %s: %s\n", result.Broadcast.Via, result.Broadcast.TxID)
	} else {
		fmt.Printf("transaction hex: %s\n", result.RawHex)
	}
	return nil
}

func runPay(args []string) error {
	fs := flag.NewFlagSet("pay", flag.ExitOnError)
	c := bindCommon(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	positional := fs.Args()
	if len(positional) < 2 {
		return fmt.Errorf("pay: want <address> <amount-in-btc>")
	}

	log := setupLogging(c)
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	satoshis, err := helpers.BTCToSatoshis(positional[1])
	if err != nil {
		return fmt.Errorf("pay: invalid amount: %w", err)
	}
	amount := int64(satoshis)

	priv, err := localPriv(c, log)
	if err != nil {
		return err
	}

	fee := cfg.DefaultFee
	if *c.fee > 0 {
		fee = *c.fee
	}

	result, err := refund.Run(context.Background(), refund.Params{
		LocalPriv:   priv,
		Destination: positional[0],
		Amount:      amount,
		Fee:         fee,
		UTXOSource:  utxoSource(cfg, c),
		Testnet:     cfg.Testnet,
		NoBroadcast: cfg.NoBroadcast,
		Relay:       relayChain(cfg),
	})
	if err != nil {
		return err
	}

	log.Infof("paying %s BTC to %s", helpers.SatoshisToBTC(uint64(amount)), positional[0])
	if result.Broadcast != nil && result.Broadcast.Broadcast {
		fmt.Printf("broadcast via %s: %s\n", result.Broadcast.Via, result.Broadcast.TxID)
	} else {
		fmt.Printf("transaction hex: %s\n", result.RawHex)
	}
	return nil
}
