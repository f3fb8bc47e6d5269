package fixtures

import "github.com/BaSui01/landau/rag"

// LectureTOC 讲义 EX1 的目录
const LectureTOC = "1 Einleitung\n1.1 Motivation\n3 Quanteninformation\n3.1 Zustände\n3.2 Qubits\n3.3 Zusammenfassung"

// LecturePassages 讲义 EX1 的若干段落及二维向量。
func LecturePassages() ([]rag.PassageRecord, [][]float64) {
	base := rag.PassageRecord{
		DocumentID:   "EX1",
		DocumentName: "Quanteninformatik",
		ChapterID:    "3",
		ChapterName:  "3 Quanteninformation",
		SectionID:    "2",
		SectionName:  "3.2 Qubits",
	}
	texts := []string{
		"Ein Qubit ist ein Zwei-Niveau-System.",
		"Der Zustand wird als $\\alpha|0\\rangle + \\beta|1\\rangle$ geschrieben.",
		"Gl. 3.1 $$|\\alpha|^2 + |\\beta|^2 = 1$$",
		"Messungen projizieren den Zustand.",
	}
	records := make([]rag.PassageRecord, len(texts))
	vectors := make([][]float64, len(texts))
	for i, text := range texts {
		r := base
		r.ParagraphID = i
		r.Content = text
		records[i] = r
		vectors[i] = []float64{1, float64(i) / 10}
	}
	records[2].FormulaID = "3.1"
	return records, vectors
}
