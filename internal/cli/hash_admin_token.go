package cli

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/crypto/bcrypt"

	http_controllers "github.com/mrlokans/mlssync/internal/http"
)

// HashAdminTokenCommand prints the bcrypt hash for ADMIN_TOKEN_HASH
type HashAdminTokenCommand struct {
	Token string
	Cost  int

	In  io.Reader
	Out io.Writer
}

// NewHashAdminTokenCommand creates a new HashAdminTokenCommand
func NewHashAdminTokenCommand() *HashAdminTokenCommand {
	return &HashAdminTokenCommand{In: os.Stdin, Out: os.Stdout}
}

// ParseFlags parses command line flags
func (cmd *HashAdminTokenCommand) ParseFlags(args []string) error {
	fs := flag.NewFlagSet("hash-admin-token", flag.ContinueOnError)

	fs.StringVar(&cmd.Token, "token", "", "Admin token to hash (read from stdin when omitted)")
	fs.IntVar(&cmd.Cost, "cost", 12, "bcrypt cost factor")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s hash-admin-token [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Hash an admin bearer token for the ADMIN_TOKEN_HASH setting.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  openssl rand -hex 24 | %s hash-admin-token\n", os.Args[0])
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	if cmd.Cost < bcrypt.MinCost || cmd.Cost > bcrypt.MaxCost {
		return fmt.Errorf("cost must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}
	return nil
}

// Run hashes the token and prints the hash
func (cmd *HashAdminTokenCommand) Run() error {
	token := cmd.Token
	if token == "" {
		line, err := bufio.NewReader(cmd.In).ReadString('\n')
		if err != nil && err != io.EOF {
			return fmt.Errorf("failed to read token: %w", err)
		}
		token = strings.TrimSpace(line)
	}

	hash, err := http_controllers.HashAdminToken(token, cmd.Cost)
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.Out, hash)
	return nil
}
