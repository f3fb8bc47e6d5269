// Package reference 定义模型可引用的讲义来源：小节、片段与公式。
//
// 每种引用有确定的引用键，模型在回答中以 [键] 的形式引用；
// 一次会话中见过的引用按键去重后保存在 Set 中。
package reference
