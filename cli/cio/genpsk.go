package main

import (
	"crypto/rand"
	"io"
	"os"

	"github.com/spf13/cobra"
)

func newGenPSKCommand() *cobra.Command {
	var size int
	command := &cobra.Command{
		Use:   "genpsk",
		Short: "Generate a random pre-shared key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if size <= 0 {
				size = 32
			}
			psk := make([]byte, size)
			_, err := io.ReadFull(rand.Reader, psk)
			if err != nil {
				return err
			}
			_, err = os.Stdout.WriteString(encodePSK(psk) + "\n")
			return err
		},
	}
	command.Flags().IntVarP(&size, "size", "s", 32, "Set the key size in bytes.")
	return command
}
