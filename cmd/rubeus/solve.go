package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/gwillem/rubeus/pkg/arm"
	"github.com/gwillem/rubeus/pkg/vector"
)

type SolveCommand struct {
	Args struct {
		X float64 `positional-arg-name:"x" description:"Extra goal, cm forward"`
		Y float64 `positional-arg-name:"y" description:"Extra goal, cm up"`
	} `positional-args:"yes"`
}

func (c *SolveCommand) Execute(args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	g := cfg.Arm.Geometry

	type goal struct {
		name string
		at   vector.Vector
	}
	goals := []goal{
		{"home", arm.Home},
		{"pickup", arm.Pickup},
		{"low pole", arm.LowPole},
		{"high pole", arm.HighPole},
	}
	if c.Args.X != 0 || c.Args.Y != 0 {
		goals = append(goals, goal{"custom", vector.New(c.Args.X, c.Args.Y)})
	}

	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).Padding(0, 1)
	nameStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("14")).Padding(0, 1)
	cellStyle := lipgloss.NewStyle().Padding(0, 1)
	badStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Padding(0, 1)

	var rows [][]string
	reachable := make([]bool, 0, len(goals))
	for _, gl := range goals {
		sol := arm.Solve(gl.at, g)
		ok := arm.Reachable(gl.at, g)
		reachable = append(reachable, ok)
		back := arm.Forward(sol.Shoulder, sol.Shoulder-180+sol.Theta, g)
		rows = append(rows, []string{
			gl.name,
			fmt.Sprintf("(%.1f, %.1f)", gl.at.X, gl.at.Y),
			fmt.Sprintf("%.2f°", sol.Shoulder),
			fmt.Sprintf("%.2f°", sol.Elbow),
			fmt.Sprintf("%.2f°", sol.Theta),
			fmt.Sprintf("(%.1f, %.1f)", back.X, back.Y),
			fmt.Sprintf("%t", ok),
		})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers("Goal", "Hand cm", "Shoulder", "Elbow cmd", "Apex", "Forward check", "Reachable").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case col == 0:
				return nameStyle
			case col == 6 && row >= 0 && row < len(reachable) && !reachable[row]:
				return badStyle
			default:
				return cellStyle
			}
		})

	fmt.Println(headerStyle.Render("Arm inverse kinematics"))
	fmt.Println(dimStyle.Render(fmt.Sprintf("links %.2f cm, elbow offset %.1f°", g.LinkLength, g.ElbowOffset)))
	fmt.Println(t.Render())
	return nil
}
