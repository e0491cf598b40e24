package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/arklim/exam-bank-service/internal/core/domain"
	"github.com/arklim/exam-bank-service/internal/core/port"
	"github.com/arklim/exam-bank-service/internal/repository"
)

// QuestionRepository implements port.QuestionRepository using PostgreSQL.
// Nested sub-questions are stored as a JSONB column.
type QuestionRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewQuestionRepository wires a PostgreSQL-backed question repository.
func NewQuestionRepository(exec pgExecutor) *QuestionRepository {
	return &QuestionRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Create inserts a new question row.
func (r *QuestionRepository) Create(ctx context.Context, question domain.Question) error {
	subQuestions, err := marshalSubQuestions(question.SubQuestions)
	if err != nil {
		return err
	}

	stmt, args, err := r.builder.Insert("exambank.questions").
		Columns(
			"id",
			"subject",
			"exam_type",
			"year",
			"month",
			"group_name",
			"paper_name",
			"question_number",
			"question_text",
			"answer_text",
			"page_number",
			"sub_questions",
			"created_at",
			"updated_at",
		).
		Values(
			question.ID,
			question.Subject,
			question.ExamType,
			question.Year,
			nullable(question.Month),
			question.Group,
			question.PaperName,
			question.QuestionNumber,
			question.QuestionText,
			nullable(question.AnswerText),
			question.PageNumber,
			subQuestions,
			question.CreatedAt,
			question.UpdatedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert question sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert question: %w", err)
	}

	return nil
}

// GetByID retrieves a question by identifier.
func (r *QuestionRepository) GetByID(ctx context.Context, id string) (*domain.Question, error) {
	stmt, args, err := r.selectQuestions().
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select question sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query question: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("read question row: %w", err)
		}
		return nil, repository.ErrNotFound
	}

	question, err := scanQuestion(rows)
	if err != nil {
		return nil, err
	}

	return question, nil
}

// List returns questions matching the filter, newest first.
func (r *QuestionRepository) List(ctx context.Context, filter domain.QuestionFilter) ([]domain.Question, error) {
	query := r.selectQuestions().OrderBy("created_at DESC")

	if filter.Subject != "" {
		query = query.Where(squirrel.Eq{"subject": filter.Subject})
	}
	if filter.Year != "" {
		query = query.Where(squirrel.Eq{"year": filter.Year})
	}
	if filter.QuestionNumber != nil {
		query = query.Where(squirrel.Eq{"question_number": *filter.QuestionNumber})
	}

	stmt, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list questions sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query questions: %w", err)
	}
	defer rows.Close()

	questions := make([]domain.Question, 0)
	for rows.Next() {
		question, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		questions = append(questions, *question)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate questions: %w", err)
	}

	return questions, nil
}

// Update rewrites all mutable columns of the question.
func (r *QuestionRepository) Update(ctx context.Context, question domain.Question) error {
	subQuestions, err := marshalSubQuestions(question.SubQuestions)
	if err != nil {
		return err
	}

	stmt, args, err := r.builder.Update("exambank.questions").
		Set("subject", question.Subject).
		Set("exam_type", question.ExamType).
		Set("year", question.Year).
		Set("month", nullable(question.Month)).
		Set("group_name", question.Group).
		Set("paper_name", question.PaperName).
		Set("question_number", question.QuestionNumber).
		Set("question_text", question.QuestionText).
		Set("answer_text", nullable(question.AnswerText)).
		Set("page_number", question.PageNumber).
		Set("sub_questions", subQuestions).
		Set("updated_at", question.UpdatedAt).
		Where(squirrel.Eq{"id": question.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update question sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("update question: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// Delete removes the question row.
func (r *QuestionRepository) Delete(ctx context.Context, id string) error {
	stmt, args, err := r.builder.Delete("exambank.questions").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete question sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("delete question: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

func (r *QuestionRepository) selectQuestions() squirrel.SelectBuilder {
	return r.builder.Select(
		"id",
		"subject",
		"exam_type",
		"year",
		"month",
		"group_name",
		"paper_name",
		"question_number",
		"question_text",
		"answer_text",
		"page_number",
		"sub_questions",
		"created_at",
		"updated_at",
	).From("exambank.questions")
}

func scanQuestion(rows pgx.Rows) (*domain.Question, error) {
	var (
		question     domain.Question
		month        sql.NullString
		answerText   sql.NullString
		subQuestions []byte
	)

	if err := rows.Scan(
		&question.ID,
		&question.Subject,
		&question.ExamType,
		&question.Year,
		&month,
		&question.Group,
		&question.PaperName,
		&question.QuestionNumber,
		&question.QuestionText,
		&answerText,
		&question.PageNumber,
		&subQuestions,
		&question.CreatedAt,
		&question.UpdatedAt,
	); err != nil {
		return nil, fmt.Errorf("scan question: %w", err)
	}

	if month.Valid {
		question.Month = month.String
	}
	if answerText.Valid {
		question.AnswerText = answerText.String
	}

	if len(subQuestions) > 0 {
		if err := json.Unmarshal(subQuestions, &question.SubQuestions); err != nil {
			return nil, fmt.Errorf("decode sub questions: %w", err)
		}
	}

	return &question, nil
}

func marshalSubQuestions(subQuestions []domain.SubQuestion) ([]byte, error) {
	if subQuestions == nil {
		subQuestions = []domain.SubQuestion{}
	}

	encoded, err := json.Marshal(subQuestions)
	if err != nil {
		return nil, fmt.Errorf("encode sub questions: %w", err)
	}

	return encoded, nil
}

func nullable(value string) any {
	if value == "" {
		return nil
	}
	return value
}

var _ port.QuestionRepository = (*QuestionRepository)(nil)
