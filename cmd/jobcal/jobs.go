package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"jobcal/internal/model"
)

const displayLayout = "Mon Jan 2 15:04"

var (
	addType    string
	addTitle   string
	addAddress string
	addAt      string
	addDrive   int
	addPeople  int
	addInstall bool
	addTinker  bool
	addRRule   string
	addUntil   string

	listStatus string
)

var addCmd = &cobra.Command{
	Use:   "add",
	Short: "Create a job (or a recurring series with --rrule)",
	Args:  cobra.NoArgs,
	RunE:  runAdd,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List jobs by scheduled date",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

var showCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one job with its derived times and checklist",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

var completeCmd = &cobra.Command{
	Use:   "complete <id>",
	Short: "Mark a job completed now",
	Args:  cobra.ExactArgs(1),
	RunE:  runComplete,
}

var toggleCmd = &cobra.Command{
	Use:   "toggle <id> <item>",
	Short: "Check or uncheck a checklist item",
	Args:  cobra.ExactArgs(2),
	RunE:  runToggle,
}

var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a job and its calendar event",
	Args:  cobra.ExactArgs(1),
	RunE:  runDelete,
}

var driveTimeCmd = &cobra.Command{
	Use:   "drivetime <id>",
	Short: "Look up the drive time from home to the job address",
	Args:  cobra.ExactArgs(1),
	RunE:  runDriveTime,
}

var homeCmd = &cobra.Command{
	Use:   "home [address]",
	Short: "Show or set the home address used as drive-time origin",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runHome,
}

func init() {
	f := addCmd.Flags()
	f.StringVar(&addType, "type", string(model.Delivery), "Delivery or Pickup")
	f.StringVar(&addTitle, "title", "", "Job title")
	f.StringVar(&addAddress, "address", "", "Customer address")
	f.StringVar(&addAt, "at", "", `Scheduled arrival, e.g. "2025-04-07 10:00"`)
	f.IntVar(&addDrive, "drive", 0, "One-way drive time in minutes")
	f.IntVar(&addPeople, "people", 1, "Crew size")
	f.BoolVar(&addInstall, "install", false, "Delivery includes installation")
	f.BoolVar(&addTinker, "tinker", false, "Follow-up work after the job")
	f.StringVar(&addRRule, "rrule", "", "Recurrence rule, e.g. FREQ=WEEKLY;COUNT=4")
	f.StringVar(&addUntil, "until", "", "Last date for --rrule (default 90 days out)")
	_ = addCmd.MarkFlagRequired("title")
	_ = addCmd.MarkFlagRequired("at")

	listCmd.Flags().StringVar(&listStatus, "status", "", "Filter: upcoming, in_progress, completed")
}

func runAdd(cmd *cobra.Command, _ []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()
	ctx := cmd.Context()
	loc := a.cfg.Location()

	at, err := parseWhen(addAt, loc)
	if err != nil {
		return err
	}
	if addDrive < 0 {
		return errors.New("--drive must not be negative")
	}
	fields := model.Fields{
		Type:                 model.JobType(addType),
		Title:                strings.TrimSpace(addTitle),
		Address:              addAddress,
		ScheduledDate:        at,
		DriveTimeMinutes:     addDrive,
		NumberOfPeople:       addPeople,
		IncludesInstallation: addInstall,
		PostTinkering:        addTinker,
	}

	if addRRule == "" {
		j, err := a.planner.Create(ctx, fields)
		if err != nil {
			return err
		}
		pterm.Success.Printfln("Created %s", j.ID)
		printJob(j, a.planner.Now(), loc)
		return nil
	}

	until := at.AddDate(0, 0, 90)
	if addUntil != "" {
		if until, err = parseWhen(addUntil, loc); err != nil {
			return err
		}
	}
	jobs, err := a.planner.CreateSeries(ctx, fields, addRRule, until)
	if len(jobs) > 0 {
		pterm.Success.Printfln("Created %d jobs", len(jobs))
		renderTable(jobs, a.planner.Now(), loc)
	}
	return err
}

func runList(cmd *cobra.Command, _ []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	jobs, err := a.planner.List(cmd.Context())
	if err != nil {
		return err
	}
	now := a.planner.Now()
	if listStatus != "" {
		filtered := jobs[:0]
		for _, j := range jobs {
			if string(j.Status(now)) == listStatus {
				filtered = append(filtered, j)
			}
		}
		jobs = filtered
	}
	if len(jobs) == 0 {
		pterm.Info.Println("No jobs")
		return nil
	}
	renderTable(jobs, now, a.cfg.Location())
	return nil
}

func runShow(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	j, err := a.resolveJob(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	printJob(j, a.planner.Now(), a.cfg.Location())
	return nil
}

func runComplete(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	j, err := a.resolveJob(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if j, err = a.planner.Complete(cmd.Context(), j.ID); err != nil {
		return err
	}
	pterm.Success.Printfln("Completed %q", j.Title)
	if exp, ok := j.WarrantyExpiration(a.planner.Now()); ok {
		pterm.Info.Printfln("Warranty until %s", exp.In(a.cfg.Location()).Format(displayLayout))
	}
	return nil
}

func runToggle(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	j, err := a.resolveJob(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if j, err = a.planner.ToggleItem(cmd.Context(), j.ID, args[1]); err != nil {
		return err
	}
	state := "unchecked"
	if j.IsItemChecked(args[1]) {
		state = "checked"
	}
	pterm.Success.Printfln("%s %s (%.0f%% done)", args[1], state, j.ChecklistProgress()*100)
	return nil
}

func runDelete(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	j, err := a.resolveJob(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if err := a.planner.Delete(cmd.Context(), j.ID); err != nil {
		return err
	}
	pterm.Success.Printfln("Deleted %q", j.Title)
	return nil
}

func runDriveTime(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	j, err := a.resolveJob(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if j, err = a.planner.RefreshDriveTime(cmd.Context(), j.ID); err != nil {
		return err
	}
	pterm.Success.Printfln("Drive time %s, departure %s",
		model.FormatDuration(j.DriveTimeMinutes),
		j.DepartureTime().In(a.cfg.Location()).Format(displayLayout))
	return nil
}

func runHome(_ *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if len(args) == 0 {
		if addr, ok := a.cfg.Home(); ok {
			pterm.Println(addr)
		} else {
			pterm.Warning.Println("Home address not set")
		}
		return nil
	}
	a.cfg.SetHomeAddress(args[0])
	if err := a.cfg.Save(configPath); err != nil {
		return err
	}
	pterm.Success.Println("Home address saved")
	return nil
}

func renderTable(jobs []*model.Job, now time.Time, loc *time.Location) {
	data := pterm.TableData{{"ID", "Title", "Type", "Scheduled", "Depart", "Return", "Status", "Checklist"}}
	for _, j := range jobs {
		data = append(data, []string{
			shortID(j.ID),
			j.Title,
			typeLabel(j),
			j.ScheduledDate.In(loc).Format(displayLayout),
			j.DepartureTime().In(loc).Format("15:04"),
			j.EstimatedReturnTime().In(loc).Format("15:04"),
			string(j.Status(now)),
			strconv.Itoa(int(j.ChecklistProgress()*100)) + "%",
		})
	}
	_ = pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

func printJob(j *model.Job, now time.Time, loc *time.Location) {
	s := j.Summarize(now)
	pterm.DefaultSection.Println(s.Title)

	rows := [][2]string{
		{"ID", s.ID},
		{"Type", typeLabel(j)},
		{"Address", s.Address},
		{"Crew", strconv.Itoa(s.NumberOfPeople)},
		{"Status", string(s.Status)},
		{"Prep start", s.PrepStartTime.In(loc).Format(displayLayout)},
		{"Departure", s.DepartureTime.In(loc).Format(displayLayout)},
		{"Arrival", s.ScheduledDate.In(loc).Format(displayLayout)},
		{"Return", s.EstimatedReturnTime.In(loc).Format(displayLayout)},
		{"Drive", s.DriveTime},
		{"Duration", s.Duration},
	}
	if s.WarrantyExpiration != nil {
		w := s.WarrantyExpiration.In(loc).Format(displayLayout)
		if s.WarrantyExpired {
			w += " (expired)"
		} else if s.WarrantyDaysRemaining != nil {
			w += fmt.Sprintf(" (%d days left)", *s.WarrantyDaysRemaining)
		}
		rows = append(rows, [2]string{"Warranty", w})
	}
	for _, r := range rows {
		pterm.Printfln("%-11s %s", r[0], r[1])
	}

	pterm.Println()
	pterm.Printfln("Checklist %.0f%%", s.ChecklistProgress*100)
	for _, item := range s.ChecklistItems {
		mark := " "
		if j.IsItemChecked(item) {
			mark = "x"
		}
		pterm.Printfln("  [%s] %s", mark, item)
	}
}

func typeLabel(j *model.Job) string {
	label := string(j.Type)
	if j.Type == model.Delivery && j.IncludesInstallation {
		label += "+install"
	}
	return label
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
