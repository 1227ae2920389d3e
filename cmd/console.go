// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/Thermoquad/absctl/pkg/scpi"
	"github.com/Thermoquad/absctl/pkg/session"
	"github.com/chzyer/readline"
	"github.com/spf13/cobra"
)

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Interactive command prompt on one connection",
	Long: `Open one connection and issue commands interactively.

The connection stays open between commands. Type help for the command list.`,
	Args: cobra.NoArgs,
	RunE: runConsole,
}

func init() {
	rootCmd.AddCommand(consoleCmd)
}

var errQuit = errors.New("quit")

var consoleCompleter = readline.NewPrefixCompleter(
	readline.PcItem("help"),
	readline.PcItem("info"),
	readline.PcItem("id"),
	readline.PcItem("ip", readline.PcItem("get"), readline.PcItem("set")),
	readline.PcItem("caldate"),
	readline.PcItem("errors",
		readline.PcItem("count"),
		readline.PcItem("next"),
		readline.PcItem("drain"),
		readline.PcItem("clear"),
	),
	readline.PcItem("cell",
		readline.PcItem("set"),
		readline.PcItem("set-all"),
		readline.PcItem("get"),
		readline.PcItem("get-all"),
	),
	readline.PcItem("quit"),
)

func runConsole(cmd *cobra.Command, args []string) error {
	s, err := OpenSession()
	if err != nil {
		return err
	}
	defer s.Close()

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "abs> ",
		AutoComplete:    consoleCompleter,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("failed to create readline: %w", err)
	}
	defer rl.Close()

	out := rl.Stdout()
	fmt.Fprintf(out, "Connected: %s\n", s.Link())
	printConsoleHelp(out)

	for {
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			return nil
		}

		err = execConsoleLine(s.Session, line, out)
		if errors.Is(err, errQuit) {
			return nil
		}
		if err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
		}
	}
}

// execConsoleLine runs one console command against s. It returns errQuit
// when the user asks to leave.
func execConsoleLine(s *session.Session, line string, out io.Writer) error {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return nil
	}
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "help", "?":
		printConsoleHelp(out)
		return nil

	case "quit", "exit", "q":
		return errQuit

	case "info":
		info, err := s.GetDeviceInfo()
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s %s %s\n", info.PartNumber, info.Serial, info.Version)

	case "id":
		id, err := s.GetDeviceID()
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%d\n", id)

	case "caldate":
		date, err := s.GetCalibrationDate()
		if err != nil {
			return err
		}
		fmt.Fprintln(out, date)

	case "ip":
		return consoleIP(s, args, out)

	case "errors":
		return consoleErrors(s, args, out)

	case "cell":
		return consoleCell(s, args, out)

	default:
		return fmt.Errorf("unknown command %q (type help)", cmd)
	}
	return nil
}

func consoleIP(s *session.Session, args []string, out io.Writer) error {
	sub := ""
	if len(args) > 0 {
		sub = args[0]
	}
	switch {
	case sub == "get" || sub == "":
		conf, err := s.GetIPAddress()
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s %s\n", conf.IP, conf.Netmask)
	case sub == "set" && len(args) == 3:
		return s.SetIPAddress(scpi.EthernetConfig{IP: args[1], Netmask: args[2]})
	default:
		return errors.New("usage: ip get | ip set IP NETMASK")
	}
	return nil
}

func consoleErrors(s *session.Session, args []string, out io.Writer) error {
	sub := "count"
	if len(args) > 0 {
		sub = args[0]
	}
	switch sub {
	case "count":
		n, err := s.GetErrorCount()
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%d\n", n)
	case "next":
		rec, err := s.GetNextError()
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%d,%q\n", rec.Code, rec.Message)
	case "drain":
		records, err := drainErrors(s)
		for _, rec := range records {
			fmt.Fprintf(out, "%d,%q\n", rec.Code, rec.Message)
		}
		return err
	case "clear":
		return s.ClearErrors()
	default:
		return errors.New("usage: errors count|next|drain|clear")
	}
	return nil
}

func consoleCell(s *session.Session, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errors.New("usage: cell set CH V | cell set-all V0..V7 | cell get CH | cell get-all")
	}
	switch args[0] {
	case "set":
		if len(args) != 3 {
			return errors.New("usage: cell set CH V")
		}
		ch, err := parseChannel(args[1])
		if err != nil {
			return err
		}
		v, err := parseVoltage(args[2])
		if err != nil {
			return err
		}
		return s.SetCellVoltage(ch, v)

	case "set-all":
		if len(args) < 2 {
			return errors.New("usage: cell set-all V0..V7")
		}
		voltages, err := parseVoltages(args[1:])
		if err != nil {
			return err
		}
		return s.SetAllCellVoltages(voltages)

	case "get":
		if len(args) != 2 {
			return errors.New("usage: cell get CH")
		}
		ch, err := parseChannel(args[1])
		if err != nil {
			return err
		}
		v, err := s.GetCellVoltageTarget(ch)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, scpi.FormatFloat(v))

	case "get-all":
		voltages, err := s.GetAllCellVoltageTargets()
		if err != nil {
			return err
		}
		parts := make([]string, len(voltages))
		for i, v := range voltages {
			parts[i] = scpi.FormatFloat(v)
		}
		fmt.Fprintln(out, strings.Join(parts, " "))

	default:
		return fmt.Errorf("unknown cell command %q", args[0])
	}
	return nil
}

func printConsoleHelp(out io.Writer) {
	fmt.Fprintln(out, `Commands:
  info                      part number, serial, version
  id                        serial bus device ID
  ip get | ip set IP MASK   Ethernet configuration
  caldate                   calibration date
  errors count|next|drain|clear
  cell set CH V             set one cell target
  cell set-all V0..V7       set all cell targets
  cell get CH | get-all     read cell targets
  quit`)
}
