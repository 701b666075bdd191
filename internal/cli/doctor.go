package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/rung-dev/rung/internal/doctor"
)

var errDoctorFoundProblems = errors.New("doctor found unresolved problems")

func newDoctorCmd(flags *globalFlags) *cobra.Command {
	var fix bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Audit rung's metadata for consistency and repair what --fix allows",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newAppContext(cmd.Context(), *flags, true)
			if err != nil {
				return err
			}

			report, err := app.doc.Run(app.ctx, doctor.Options{Fix: fix})
			if err != nil {
				return fail(app.log, err)
			}

			if len(report.Findings) == 0 {
				app.log.Success("no problems found")
				return nil
			}
			for _, f := range report.Findings {
				line := f.Code + ": " + f.Message
				if f.Fixed {
					line += " (fixed)"
				}
				switch f.Severity {
				case doctor.SeverityError:
					app.log.Error("%s", line)
				case doctor.SeverityWarning:
					app.log.Warn("%s", line)
				default:
					app.log.Info("%s", line)
				}
			}
			if report.HasErrors() {
				return fail(app.log, errDoctorFoundProblems)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&fix, "fix", false, "Prune orphaned operation state and backups")
	return cmd
}
