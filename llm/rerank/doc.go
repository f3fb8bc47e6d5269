// 版权所有 2024 Landau Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 rerank 提供交叉编码器重排接口与 Cohere 实现。

[Provider.Scores] 返回与输入顺序对齐的相关性分数；少于两个文档时不发起请求，
每个文档得分 1.0，因为重排至少需要两个候选才有意义。
*/
package rerank
