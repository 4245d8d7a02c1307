// Package setup holds the terminal config wizard and the claim confirmation prompt.
package setup

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/karmabridge/config"
	"github.com/vadiminshakov/karmabridge/internal/conversion"
	"github.com/vadiminshakov/karmabridge/internal/domain"
)

var (
	subtle    = lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#383838"}
	highlight = lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	special   = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}
	danger    = lipgloss.AdaptiveColor{Light: "#D7263D", Dark: "#FF5F5F"}

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Background(highlight).
			Padding(1, 2).
			Bold(true).
			MarginBottom(1)

	stepStyle = lipgloss.NewStyle().
			Foreground(special).
			Bold(true).
			MarginTop(1)

	boxStyle = lipgloss.NewStyle().Border(lipgloss.NormalBorder()).Padding(1)
)

const (
	modeDelegated = "delegated"
	modeDirect    = "direct"
)

func screen(step string) {
	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("KARMA BRIDGE SETUP"))
	fmt.Println(stepStyle.Render(step))
}

// RunWizard asks for the client and backend settings and writes them to path as yaml.
func RunWizard(path string) error {
	var (
		providerURL     = "http://127.0.0.1:1248"
		mode            = modeDelegated
		claimEndpoint   = "http://localhost:8080/api/karma/claim"
		treasuryAddress string
		chainID         = strconv.FormatUint(domain.ArbitrumSepolia.ChainID, 10)
		listenAddr      = ":8080"
		tlsDomains      string
		confirmTimeout  = "2m"
		confirm         bool
	)

	screen("STEP 1: WALLET")
	fmt.Println(lipgloss.NewStyle().Foreground(subtle).Render("Point the client at your wallet's JSON-RPC endpoint.\n"))
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Wallet provider URL").
				Description("http, ws or ipc endpoint of the signer (empty uses $" + config.EnvProviderURL + ")").
				Value(&providerURL).
				Validate(validateOptionalURL),
		),
	).Run()
	if err != nil {
		return err
	}

	screen("STEP 2: PAYOUT")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Who signs the payout?").
				Options(
					huh.NewOption("Backend endpoint (recommended)", modeDelegated),
					huh.NewOption("This machine, with the treasury key", modeDirect),
				).
				Value(&mode),
			huh.NewInput().
				Title("Treasury address").
				Value(&treasuryAddress).
				Validate(validateAddress),
			huh.NewSelect[string]().
				Title("Payout network").
				Options(
					huh.NewOption(domain.ArbitrumSepolia.Name, strconv.FormatUint(domain.ArbitrumSepolia.ChainID, 10)),
					huh.NewOption(domain.EthereumMainnet.Name, strconv.FormatUint(domain.EthereumMainnet.ChainID, 10)),
				).
				Value(&chainID),
		),
	).Run()
	if err != nil {
		return err
	}

	screen("STEP 3: BACKEND")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Claim endpoint").
				Description("Used by the client in delegated mode").
				Value(&claimEndpoint).
				Validate(validateURL),
			huh.NewInput().
				Title("Backend listen address").
				Value(&listenAddr),
			huh.NewInput().
				Title("TLS domains").
				Description("Comma separated; empty serves plain HTTP").
				Value(&tlsDomains),
			huh.NewInput().
				Title("Confirmation timeout").
				Description("Duration string (e.g. 90s, 2m)").
				Value(&confirmTimeout).
				Validate(validateDuration),
		),
	).Run()
	if err != nil {
		return err
	}

	screen("FINAL CONFIRMATION")
	summary := fmt.Sprintf(
		"Provider: %s\nMode: %s\nTreasury: %s\nChain: %s\nEndpoint: %s\nListen: %s\n",
		providerURL, mode, treasuryAddress, chainID, claimEndpoint, listenAddr,
	)
	fmt.Println(boxStyle.Render(summary))

	err = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Save configuration?").
				Affirmative("Yes, save").
				Negative("No, exit").
				Value(&confirm),
		),
	).Run()
	if err != nil {
		return err
	}
	if !confirm {
		return fmt.Errorf("setup cancelled by user")
	}

	timeout, _ := time.ParseDuration(confirmTimeout)
	tmp := config.ConfigTmp{
		ProviderURL:     providerURL,
		ClaimEndpoint:   claimEndpoint,
		TreasuryAddress: treasuryAddress,
		DirectSignerStr: strconv.FormatBool(mode == modeDirect),
		ListenAddr:      listenAddr,
		TLSDomains:      tlsDomains,
		ConfirmTimeout:  timeout,
		ChainIDStr:      chainID,
	}
	if err := config.Save(path, tmp); err != nil {
		return fmt.Errorf("failed to save config file: %w", err)
	}

	fmt.Println(lipgloss.NewStyle().Foreground(special).Render(
		fmt.Sprintf("\n✓ Configuration saved to %s\nKeep %s in the environment, never in the file.", path, config.EnvTreasuryKey)))
	return nil
}

// ConfirmClaim shows what a claim will pay and asks the user to go ahead.
func ConfirmClaim(points uint64, dest domain.Address, network domain.NetworkDescriptor) (bool, error) {
	var confirm bool

	screen("CONVERT KARMA")
	fmt.Println(boxStyle.Render(ClaimSummary(points, dest, network)))

	err := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Send the claim?").
				Affirmative("Convert").
				Negative("Cancel").
				Value(&confirm),
		),
	).Run()
	return confirm, err
}

// ClaimSummary renders the claim details shown before confirmation.
func ClaimSummary(points uint64, dest domain.Address, network domain.NetworkDescriptor) string {
	value := conversion.PointsToValue(points)
	return fmt.Sprintf("Points: %d\nYou receive: %s %s\nTo: %s\nNetwork: %s",
		points, value.String(), network.NativeCurrency.Symbol, dest.Short(6), network.Name)
}

// RenderReceipt formats a claim outcome for the terminal.
func RenderReceipt(receipt domain.ConversionReceipt, network domain.NetworkDescriptor) string {
	if !receipt.Success {
		return lipgloss.NewStyle().Foreground(danger).Render("✗ " + receipt.Message)
	}
	lines := []string{"✓ " + receipt.Message}
	if link := network.TxURL(receipt.TxHash); link != "" {
		lines = append(lines, link)
	}
	return lipgloss.NewStyle().Foreground(special).Render(strings.Join(lines, "\n"))
}

// RenderError formats a failure for the terminal.
func RenderError(err error) string {
	return lipgloss.NewStyle().Foreground(danger).Render("✗ " + err.Error())
}

func validateAddress(s string) error {
	if !domain.IsValidAddress(strings.TrimSpace(s)) {
		return fmt.Errorf("must be a 0x-prefixed 20 byte address")
	}
	return nil
}

func validateURL(s string) error {
	u, err := url.Parse(strings.TrimSpace(s))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("must be an absolute URL")
	}
	return nil
}

func validateOptionalURL(s string) error {
	s = strings.TrimSpace(s)
	if s == "" || strings.HasSuffix(s, ".ipc") {
		return nil
	}
	return validateURL(s)
}

func validateDuration(s string) error {
	d, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	if d <= 0 {
		return fmt.Errorf("must be positive")
	}
	return nil
}

// ParsePoints reads a positive whole number of karma points.
func ParsePoints(s string) (uint64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("must be a number")
	}
	if !d.IsInteger() || !d.IsPositive() {
		return 0, fmt.Errorf("must be a positive whole number")
	}
	return strconv.ParseUint(d.String(), 10, 64)
}
