/*
# 概述

Package rag 实现讲义文档的检索管线与文档查找。

检索分四步：向量搜索（可选多查询扩展，按标识键去重）、交叉编码器重排序、
按阈值过滤并截断到 top_n、同一小节内的邻居段落扩展。

# 核心接口/类型

  - PassageStore：段落集合查询接口（MemoryStore / ChromaStore / SQLStore）
  - Pipeline：检索管线，实现 Searcher
  - CachedSearcher：基于 Redis 的检索结果缓存
  - Library：目录、小节、公式查找
  - RetrievalRequest：检索请求及其校验
*/
package rag
