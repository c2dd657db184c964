package cli

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/spf13/cobra"

	"learnpath-service/internal/config"
	"learnpath-service/internal/domain"
	"learnpath-service/internal/infra/postgres"
	"learnpath-service/internal/quizfile"
)

// NewImportQuizCmd loads quiz definitions from YAML or JSON files into Postgres.
func NewImportQuizCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "import-quiz <file>...",
		Short: "Validate and store quiz definition files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			slog.SetDefault(cfg.Logger())
			if cfg.Postgres.URL == "" {
				return fmt.Errorf("postgres url not configured")
			}

			// Parse every file before storing any of them.
			quizzes := make([]domain.Quiz, 0, len(args))
			for _, path := range args {
				quiz, err := quizfile.ParseFile(path)
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				if quiz.ID == "" {
					return fmt.Errorf("%s: quiz id is required for import", path)
				}
				for i := range quiz.Questions {
					if quiz.Questions[i].ID == "" {
						quiz.Questions[i].ID = fmt.Sprintf("q%d", i+1)
					}
				}
				quizzes = append(quizzes, quiz)
			}

			pool, err := pgxpool.Connect(cmd.Context(), cfg.Postgres.URL)
			if err != nil {
				return err
			}
			defer pool.Close()
			store := postgres.NewQuizStore(pool)

			for _, quiz := range quizzes {
				quiz.UpdatedAt = time.Now().UTC()
				if err := store.SaveQuiz(cmd.Context(), quiz); err != nil {
					return fmt.Errorf("save %s: %w", quiz.ID, err)
				}
				slog.Info("quiz imported", "quiz_id", quiz.ID, "questions", len(quiz.Questions))
			}
			return nil
		},
	}
}
