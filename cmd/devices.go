package cmd

import (
	"fmt"
	"strconv"

	"github.com/bnema/gesturesd/internal/config"
	"github.com/bnema/gesturesd/internal/input"
	"github.com/bnema/gesturesd/internal/logger"
	"github.com/bnema/gesturesd/internal/ui"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List touchpads",
	Long: `List the touchpads gesturesd can read. With --select, choose which ones the
daemon opens and save the choice to daemon.devices.`,
	RunE: runDevices,
}

func init() {
	devicesCmd.Flags().Bool("select", false, "Interactively choose the touchpads to use")
	rootCmd.AddCommand(devicesCmd)
}

func runDevices(cmd *cobra.Command, args []string) error {
	cfg := config.Get()

	if sel, _ := cmd.Flags().GetBool("select"); sel {
		chosen, err := input.NewDeviceSelector(cfg.Touchpad.Glob).SelectTouchpads(cfg.Daemon.Devices)
		if err != nil {
			return err
		}
		if err := config.SetDevices(chosen); err != nil {
			return err
		}
		if len(chosen) == 0 {
			logger.Infof("Saved to %s: every touchpad will be used", config.GetConfigPath())
		} else {
			logger.Infof("Saved %d touchpad(s) to %s", len(chosen), config.GetConfigPath())
		}
		return nil
	}

	pads, err := input.ListTouchpads(cfg.Touchpad.Glob)
	if err != nil {
		return err
	}
	if len(pads) == 0 {
		fmt.Println(ui.WarningStyle.Render(ui.IconWarning + " No touchpads found. Is your user in the input group?"))
		return nil
	}

	filter := cfg.Daemon.Devices
	fmt.Println(renderDevices(pads, func(p input.DeviceInfo) bool {
		if len(filter) == 0 {
			return true
		}
		for _, f := range filter {
			if resolved, err := input.ResolveEventPath(f); err == nil && resolved == p.Path {
				return true
			}
		}
		return false
	}))
	return nil
}

func renderDevices(pads []input.DeviceInfo, used func(input.DeviceInfo) bool) string {
	cell := ui.TableCellStyle
	header := lipgloss.JoinHorizontal(lipgloss.Top,
		cell.Width(4).Render(""),
		cell.Width(10).Render(ui.TableHeaderStyle.Render("NODE")),
		cell.Width(40).Render(ui.TableHeaderStyle.Render("NAME")),
		cell.Width(9).Render(ui.TableHeaderStyle.Render("FINGERS")),
		ui.TableHeaderStyle.Render("PERSISTENT PATH"),
	)

	rows := []string{header}
	for _, p := range pads {
		persistent := ui.SubtleStyle.Render("-")
		if p.Identity != nil && p.Identity.Preferred() != "" {
			persistent = ui.SubtleStyle.Render(p.Identity.Preferred())
		}
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top,
			cell.Width(4).Render(ui.FormatStatus(used(p), "")),
			cell.Width(10).Render(p.ID),
			cell.Width(40).Render(p.Name),
			cell.Width(9).Render(strconv.Itoa(p.MaxTools)),
			persistent,
		))
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}
