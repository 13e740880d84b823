package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/a11ylint/a11ylint-server/internal/util"
)

// Encrypts or decrypts a session blob with the server's ENCRYPTION_KEY.
// Reads the value from stdin when no argument is given so it stays out of
// shell history.
func main() {
	if len(os.Args) < 2 || (os.Args[1] != "encrypt" && os.Args[1] != "decrypt") {
		fmt.Fprintf(os.Stderr, "Usage: go run scripts/codec.go encrypt|decrypt [value]\n")
		os.Exit(1)
	}

	_ = godotenv.Load()
	codec := util.NewCodec(os.Getenv("ENCRYPTION_KEY"))
	if !codec.Configured() {
		fmt.Fprintf(os.Stderr, "Error: ENCRYPTION_KEY is not set\n")
		os.Exit(1)
	}

	value := ""
	if len(os.Args) > 2 {
		value = os.Args[2]
	} else {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		value = strings.TrimRight(line, "\r\n")
	}

	var (
		out string
		err error
	)
	if os.Args[1] == "encrypt" {
		out, err = codec.Encrypt(value)
	} else {
		out, err = codec.Decrypt(value)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(out)
}
