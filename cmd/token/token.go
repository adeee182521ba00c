// Package token implements the token sub-commands
package token

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/paularlott/cli"
	"golang.org/x/term"

	"github.com/martinsuchenak/gestion-impacts/internal/auth"
)

// Command returns the token command
func Command() *cli.Command {
	return &cli.Command{
		Name:        "token",
		Usage:       "API token helpers",
		Description: "Generate API tokens and their bcrypt hashes for the tokens section of the configuration file",
		Commands: []*cli.Command{
			{
				Name:        "hash",
				Usage:       "Hash a token for token_hash",
				Description: "Read a token from the terminal, without echo, or from stdin and print its bcrypt hash",
				Run: func(ctx context.Context, cmd *cli.Command) error {
					secret, err := readSecret(os.Stdin, os.Stderr)
					if err != nil {
						return err
					}
					hash, err := auth.HashToken(secret)
					if err != nil {
						return err
					}
					fmt.Println(hash)
					return nil
				},
			},
			{
				Name:        "generate",
				Usage:       "Generate a random token",
				Description: "Print a new random token and its bcrypt hash",
				Run: func(ctx context.Context, cmd *cli.Command) error {
					secret, hash, err := Generate()
					if err != nil {
						return err
					}
					fmt.Printf("token:      %s\ntoken_hash: %s\n", secret, hash)
					return nil
				},
			},
		},
	}
}

// Generate returns a random token and its hash.
func Generate() (string, string, error) {
	secret := strings.ReplaceAll(uuid.NewString()+uuid.NewString(), "-", "")
	hash, err := auth.HashToken(secret)
	if err != nil {
		return "", "", err
	}
	return secret, hash, nil
}

// readSecret prompts on a terminal and reads the first line otherwise.
func readSecret(in *os.File, prompt io.Writer) (string, error) {
	var secret string
	if term.IsTerminal(int(in.Fd())) {
		fmt.Fprint(prompt, "Token: ")
		b, err := term.ReadPassword(int(in.Fd()))
		fmt.Fprintln(prompt)
		if err != nil {
			return "", err
		}
		secret = string(b)
	} else {
		var err error
		if secret, err = firstLine(in); err != nil {
			return "", err
		}
	}

	secret = strings.TrimSpace(secret)
	if secret == "" {
		return "", errors.New("empty token")
	}
	return secret, nil
}

func firstLine(r io.Reader) (string, error) {
	sc := bufio.NewScanner(r)
	if sc.Scan() {
		return sc.Text(), nil
	}
	return "", sc.Err()
}
