package questions

import "node.town/trivia/quiz"

// Fallback is the built-in set used when generation fails.
func Fallback() []quiz.Question {
	return []quiz.Question{
		{
			Category: "วิทยาศาสตร์",
			Prompt:   "ความเร็วของแสงในสุญญากาศโดยประมาณคือเท่าใด",
			Options: []string{
				"300,000 กม./วินาที",
				"150,000 กม./วินาที",
				"500,000 กม./วินาที",
				"1,000,000 กม./วินาที",
			},
			CorrectAnswer: "300,000 กม./วินาที",
		},
		{
			Category:      "ภูมิศาสตร์",
			Prompt:        "เมืองหลวงของประเทศออสเตรเลียคือเมืองใด",
			Options:       []string{"ซิดนีย์", "แคนเบอร์รา", "เมลเบิร์น", "เพิร์ท"},
			CorrectAnswer: "แคนเบอร์รา",
		},
		{
			Category:      "ประวัติศาสตร์",
			Prompt:        "กรุงรัตนโกสินทร์ได้รับการสถาปนาขึ้นในปีพุทธศักราชใด",
			Options:       []string{"พ.ศ. 2325", "พ.ศ. 2310", "พ.ศ. 2475", "พ.ศ. 2394"},
			CorrectAnswer: "พ.ศ. 2325",
		},
	}
}
