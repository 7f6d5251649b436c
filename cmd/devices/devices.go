package devices

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tphakala/oscil-go/internal/capture"
	"github.com/tphakala/oscil-go/internal/conf"
)

// Command creates a command that lists available audio capture devices.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List available audio capture devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			return listDevices()
		},
	}

	return cmd
}

func listDevices() error {
	infos, err := capture.ListDevices()
	if err != nil {
		return fmt.Errorf("error listing capture devices: %w", err)
	}

	if len(infos) == 0 {
		fmt.Println("No capture devices found")
		return nil
	}

	fmt.Println("Available capture devices:")
	for i, info := range infos {
		marker := " "
		if info.IsDefault {
			marker = "*"
		}
		fmt.Printf("%s %2d: %s\n", marker, i, info.Name)
	}
	fmt.Println("\n* = system default")

	return nil
}
