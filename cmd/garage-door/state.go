package main

import (
	"strconv"

	"github.com/charmbracelet/lipgloss"

	"github.com/sweeney/garage-door/internal/config"
	"github.com/sweeney/garage-door/internal/gpio"
)

var (
	headerStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#89b4fa")).PaddingRight(2)
	cellStyle     = lipgloss.NewStyle().PaddingRight(2)
	activeStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#a6e3a1")).Bold(true)
	inactiveStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#f38ba8"))
)

// stateRow is one configured input of one door.
type stateRow struct {
	door   string
	sensor string
	pin    int
	value  string
}

// Values shown for a sensor reading.
const (
	valueActive   = "ACTIVE"
	valueInactive = "INACTIVE"
	valueError    = "ERROR"
)

func readState(cfg *config.Config, r gpio.Reader) []stateRow {
	var rows []stateRow
	for _, d := range cfg.Doors {
		for _, s := range []struct {
			name string
			pin  *int
		}{
			{"closed", d.ClosedSensor},
			{"open", d.OpenSensor},
			{"obstruction", d.ObstructionSensor},
		} {
			if s.pin == nil {
				continue
			}
			row := stateRow{door: d.ID, sensor: s.name, pin: *s.pin}
			switch v, err := r.Read(*s.pin); {
			case err != nil:
				row.value = valueError
			case v:
				row.value = valueActive
			default:
				row.value = valueInactive
			}
			rows = append(rows, row)
		}
	}
	return rows
}

// renderState reads every configured sensor once and renders them as a table.
func renderState(cfg *config.Config, r gpio.Reader) string {
	rows := readState(cfg, r)
	if len(rows) == 0 {
		return inactiveStyle.Render("no sensors configured")
	}

	cols := [4][]string{
		{headerStyle.Render("DOOR")},
		{headerStyle.Render("SENSOR")},
		{headerStyle.Render("PIN")},
		{headerStyle.Render("VALUE")},
	}
	for _, row := range rows {
		cols[0] = append(cols[0], cellStyle.Render(row.door))
		cols[1] = append(cols[1], cellStyle.Render(row.sensor))
		cols[2] = append(cols[2], cellStyle.Render(strconv.Itoa(row.pin)))
		cols[3] = append(cols[3], valueStyle(row.value).Render(row.value))
	}

	rendered := make([]string, len(cols))
	for i, c := range cols {
		rendered[i] = lipgloss.JoinVertical(lipgloss.Left, c...)
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, rendered...)
}

func valueStyle(v string) lipgloss.Style {
	switch v {
	case valueActive:
		return activeStyle
	case valueError:
		return errorStyle
	}
	return inactiveStyle
}
