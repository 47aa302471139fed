// Command eggbotctl is a small terminal client for eggbotd's HTTP surface.
// It shows a spinner while the request is in flight (yacspin, present in
// the teacher's go.mod but unused by any teacher source file) and
// colorizes the resulting status line (fatih/color, same provenance).
package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/theckman/yacspin"
)

type status struct {
	SetpointC      float64 `json:"setpoint_c"`
	DamperPercent  float64 `json:"damper_percent"`
	ControlMode    string  `json:"control_mode"`
	SafetyShutdown bool    `json:"safety_shutdown"`
	PitTempC       *float64 `json:"pit_temp_c"`
}

func main() {
	addr := "http://localhost:8000"
	if len(os.Args) > 1 {
		addr = os.Args[1]
	}

	spinner, err := yacspin.New(yacspin.Config{
		Frequency:     100 * time.Millisecond,
		CharSet:       yacspin.CharSets[9],
		Suffix:        " querying eggbotd",
		SuffixAutoColon: true,
	})
	if err == nil {
		spinner.Start()
	}

	st, err := fetchStatus(addr)

	if spinner != nil {
		spinner.Stop()
	}

	if err != nil {
		color.Red("error: %v", err)
		os.Exit(1)
	}

	printStatus(st)
}

func fetchStatus(addr string) (status, error) {
	resp, err := http.Get(addr + "/status")
	if err != nil {
		return status{}, err
	}
	defer resp.Body.Close()
	var st status
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return status{}, err
	}
	return st, nil
}

func printStatus(st status) {
	pit := "--"
	if st.PitTempC != nil {
		pit = fmt.Sprintf("%.1fC", *st.PitTempC)
	}

	line := fmt.Sprintf("pit=%s setpoint=%.1fC damper=%.0f%% mode=%s", pit, st.SetpointC, st.DamperPercent, st.ControlMode)

	switch {
	case st.SafetyShutdown:
		color.New(color.FgRed, color.Bold).Println("SHUTDOWN  " + line)
	case st.ControlMode == "manual":
		color.Yellow("MANUAL    " + line)
	default:
		color.Green("RUNNING   " + line)
	}
}
