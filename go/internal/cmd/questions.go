package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/mcdev12/interviewroom/go/internal/session"
)

// questionFile is the YAML shape of a question sequence on disk.
type questionFile struct {
	Questions []struct {
		Text           string   `yaml:"text"`
		CorrectAnswer  string   `yaml:"correct_answer"`
		TimeLimit      int      `yaml:"time_limit"`
		Difficulty     int      `yaml:"difficulty"`
		Skills         []string `yaml:"skills"`
		CommonMistakes []string `yaml:"common_mistakes"`
		MaxScore       int      `yaml:"max_score"`
	} `yaml:"questions"`
}

func loadQuestions(path string) ([]session.Question, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read question file: %w", err)
	}

	var file questionFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse question file: %w", err)
	}
	if len(file.Questions) == 0 {
		return nil, fmt.Errorf("question file %s contains no questions", path)
	}

	questions := make([]session.Question, 0, len(file.Questions))
	for i, q := range file.Questions {
		if q.Text == "" {
			return nil, fmt.Errorf("question %d has no text", i)
		}
		if q.TimeLimit <= 0 {
			return nil, fmt.Errorf("question %d has no time limit", i)
		}
		questions = append(questions, session.Question{
			Text:           q.Text,
			CorrectAnswer:  q.CorrectAnswer,
			TimeLimit:      q.TimeLimit,
			Difficulty:     q.Difficulty,
			Skills:         q.Skills,
			CommonMistakes: q.CommonMistakes,
			MaxScore:       q.MaxScore,
		})
	}
	return questions, nil
}
